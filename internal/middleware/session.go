// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/searchsaver/internal/model"
)

// SessionCookieName はセッションIDを保持するHttpOnly Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// viewerContextKey はリクエストコンテキストにViewerを格納するためのキー。
var viewerContextKey = contextKey("viewer")

// SessionFinder はセッションの検索に必要なインターフェース。
// 見つからない、または期限切れの場合はnilを返す。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionResolver はHTTP Only CookieからセッションIDを読み取り、
// Viewerを解決してリクエストコンテキストに注入するミドルウェアを返す。
// 未認証でもリクエストは拒否しない。拒否はRequireSession系で行う。
func NewSessionResolver(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := resolveViewer(r, sessionFinder)
			if viewer.IsAuthenticated() {
				annotateUserID(r.Context(), viewer.UserID())
			}
			ctx := context.WithValue(r.Context(), viewerContextKey, viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveViewer はCookieからViewerを解決する。
// 照会エラーは未認証として扱い、ログに記録する。
func resolveViewer(r *http.Request, sessionFinder SessionFinder) *model.Viewer {
	viewer := &model.Viewer{State: model.SessionStateUninitialized}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		viewer.State = model.SessionStateAnonymous
		return viewer
	}

	viewer.State = model.SessionStateResolving
	session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		viewer.State = model.SessionStateAnonymous
		return viewer
	}
	if session == nil {
		viewer.State = model.SessionStateAnonymous
		return viewer
	}

	viewer.State = model.SessionStateAuthenticated
	viewer.Session = session
	return viewer
}

// RequireSession は未認証リクエストに401 Unauthorized（JSON）を返すミドルウェア。
// APIルートで使用する。NewSessionResolverの後に配置する。
func RequireSession() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ViewerFromContext(r.Context()).IsAuthenticated() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSessionRedirect は未認証リクエストをログイン画面へ303で転送するミドルウェア。
// 元のパスとクエリはfromパラメータで引き継ぐ。
func RequireSessionRedirect(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ViewerFromContext(r.Context()).IsAuthenticated() {
				target := loginPath + "?from=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ViewerFromContext はリクエストコンテキストからViewerを取得する。
// セッションリゾルバーを通過していない場合は未初期化のViewerを返す。
func ViewerFromContext(ctx context.Context) *model.Viewer {
	if viewer, ok := ctx.Value(viewerContextKey).(*model.Viewer); ok && viewer != nil {
		return viewer
	}
	return &model.Viewer{State: model.SessionStateUninitialized}
}

// SessionFromContext は認証済みセッションを取得する。未認証の場合はnil。
func SessionFromContext(ctx context.Context) *model.Session {
	viewer := ViewerFromContext(ctx)
	if !viewer.IsAuthenticated() {
		return nil
	}
	return viewer.Session
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証済みのリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID := ViewerFromContext(ctx).UserID()
	if userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithSession は認証済みViewerをコンテキストに注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, viewerContextKey, &model.Viewer{
		State:   model.SessionStateAuthenticated,
		Session: session,
	})
}

// ContextWithUserID はユーザーIDだけを持つ認証済みViewerをコンテキストに注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithSession(ctx, &model.Session{UserID: userID})
}
