package engine

import (
	"net/http"
	"time"
)

// PreferenceCookieName はエンジン選択を保存するCookie名。
const PreferenceCookieName = "cx_pref"

// preferenceMaxAge はエンジン選択Cookieの有効期間（1年）。
const preferenceMaxAge = 365 * 24 * time.Hour

// PreferenceStore はユーザーのエンジン選択を永続化するインターフェース。
type PreferenceStore interface {
	// Load は保存済みの選択を返す。未保存または不正な値の場合は空文字列。
	Load(r *http.Request) string
	// Save は選択を保存する。書き込みの失敗は無視される。
	Save(w http.ResponseWriter, id string)
}

// CookiePreferenceStore はブラウザCookieにエンジン選択を保存する。
// サーバー側には何も保持しないため、ブラウザ単位で選択が保持される。
type CookiePreferenceStore struct {
	registry *Registry
	secure   bool
	domain   string
}

// NewCookiePreferenceStore はCookiePreferenceStoreを生成する。
func NewCookiePreferenceStore(registry *Registry, secure bool, domain string) *CookiePreferenceStore {
	return &CookiePreferenceStore{registry: registry, secure: secure, domain: domain}
}

// Load はCookieから選択を読み出す。既知のエンジンID以外は無視する。
func (s *CookiePreferenceStore) Load(r *http.Request) string {
	c, err := r.Cookie(PreferenceCookieName)
	if err != nil {
		return ""
	}
	if !s.registry.IsValidID(c.Value) {
		return ""
	}
	return c.Value
}

// Save は選択をCookieに書き込む。
// 未知のIDは書き込まない（呼び出し側で事前に検証すること）。
func (s *CookiePreferenceStore) Save(w http.ResponseWriter, id string) {
	if !s.registry.IsValidID(id) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     PreferenceCookieName,
		Value:    id,
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   int(preferenceMaxAge.Seconds()),
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// compile-time interface check
var _ PreferenceStore = (*CookiePreferenceStore)(nil)
