package middleware

import (
	"net/http"
	"strings"
)

// corsAllowedMethods はJSON APIが受け付けるメソッド。
const corsAllowedMethods = "GET, POST, PUT, DELETE, OPTIONS"

// NewCORSMiddleware は /api/ 配下にallowedOriginからのクロスオリジン呼び出しを許可する。
// 画面・フォーム・認証ルートは同一オリジン専用のためヘッダーを付けない。
// Originが一致しない場合もヘッダーを付けず、ブラウザ側で拒否させる。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowedOrigin = strings.TrimSuffix(allowedOrigin, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || origin != allowedOrigin {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			// プリフライトは後続に渡さず204で応答する
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
