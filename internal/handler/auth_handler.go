// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/searchsaver/internal/middleware"
	"github.com/hitoshi/searchsaver/internal/model"
)

// LoginPath はログイン画面のパス。未認証の画面アクセスはここへ転送される。
const LoginPath = "/auth"

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・サインアップ・ログアウトのHTTPハンドラー。
// フォーム送信（画面）とJSON（API）の両方を受け付ける。
type AuthHandler struct {
	service  AuthServiceInterface
	renderer *Renderer
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer *Renderer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		renderer: renderer,
		config:   config,
	}
}

// authPageData はログイン画面のテンプレートデータ。
type authPageData struct {
	PageTitle string
	CSRFToken string
	Email     string // ログイン中のユーザー（ヘッダー表示用）。ログイン画面では常に空。
	FormEmail string // 再表示時に入力欄へ戻すメールアドレス
	From      string
	Signup    bool
	Error     string
}

// credentialsRequest はログイン・サインアップのJSONリクエストボディ。
type credentialsRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	From            string `json:"from"`
}

// sessionResponse はログイン成功時のJSONレスポンス。
type sessionResponse struct {
	User     userResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Page はログイン/サインアップ画面を表示する。
// GET /auth?from=/path&mode=signup
// 認証済みの場合はfromへ転送する。
func (h *AuthHandler) Page(w http.ResponseWriter, r *http.Request) {
	from := safeRedirectPath(r.URL.Query().Get("from"))
	if middleware.ViewerFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, from, http.StatusSeeOther)
		return
	}

	h.renderer.Render(w, http.StatusOK, "auth.html", authPageData{
		PageTitle: "Log in",
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		From:      from,
		Signup:    r.URL.Query().Get("mode") == "signup",
	})
}

// Login は認証情報でログインする。
// POST /auth/login
// 成功時はfrom（ローカルパスのみ）へ303で転送する。失敗時はIdPのメッセージを表示する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readCredentials(w, r)
	if !ok {
		return
	}
	from := safeRedirectPath(req.From)

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.authFailed(w, r, err, authPageData{PageTitle: "Log in", FormEmail: req.Email, From: from})
		return
	}

	h.setSessionCookie(w, session.ID)
	h.authSucceeded(w, r, session, from)
}

// Signup はアカウントを作成してログインする。
// POST /auth/signup
// 成功時は常に/へ転送する。
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.service.Signup(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		h.authFailed(w, r, err, authPageData{
			PageTitle: "Create account",
			FormEmail: req.Email,
			From:      safeRedirectPath(req.From),
			Signup:    true,
		})
		return
	}

	h.setSessionCookie(w, session.ID)
	h.authSucceeded(w, r, session, "/")
}

// Logout はセッションを破棄する。
// POST /auth/logout
// セッションに紐づくライブ購読もサービス側で解放される。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: session.UserID, Email: session.Email})
}

// readCredentials はJSONまたはフォームから認証情報を読み取る。
func (h *AuthHandler) readCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if isJSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return req, false
		}
		return req, true
	}

	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return req, false
	}
	req.Email = r.PostFormValue("email")
	req.Password = r.PostFormValue("password")
	req.ConfirmPassword = r.PostFormValue("confirm_password")
	req.From = r.PostFormValue("from")
	return req, true
}

func (h *AuthHandler) authSucceeded(w http.ResponseWriter, r *http.Request, session *model.Session, redirect string) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, sessionResponse{
			User:     userResponse{ID: session.UserID, Email: session.Email},
			Redirect: redirect,
		})
		return
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// authFailed は認証エラーを返す。画面の場合は入力を保持したままフォームを再表示する。
func (h *AuthHandler) authFailed(w http.ResponseWriter, r *http.Request, err error, page authPageData) {
	apiErr, status := toAPIError(err)
	if wantsJSON(r) {
		writeAPIErrorResponse(w, status, apiErr)
		return
	}

	page.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	page.Error = apiErr.Message
	h.renderer.Render(w, status, "auth.html", page)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeRedirectPath はリダイレクト先をローカルパスに制限する。
// "/"で始まり"//"や"/\"で始まらないパスのみ許可し、それ以外は"/"を返す。
func safeRedirectPath(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") {
		return "/"
	}
	if strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return "/"
	}
	if strings.ContainsAny(from, "\r\n") {
		return "/"
	}
	return from
}

// isJSONBody はリクエストボディがJSONかどうかを返す。
func isJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// wantsJSON はクライアントがJSONレスポンスを求めているかを返す。
func wantsJSON(r *http.Request) bool {
	return isJSONBody(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}
