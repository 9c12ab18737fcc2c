package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/hitoshi/searchsaver/internal/model"
)

// NewRecoveryMiddleware はpanicを500応答に変換するミドルウェアを返す。
// /api/ 配下は統一エラーJSON、画面ルートはテキストで応答する。
// SSEなど応答を書き始めた後のpanicはログのみ残し、接続を閉じる。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error("panic recovered",
					slog.Any("panic", p),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				)
				if rec.written {
					panic(http.ErrAbortHandler)
				}
				if strings.HasPrefix(r.URL.Path, "/api/") {
					WriteInternalServerError(w)
					return
				}
				http.Error(w, model.NewInternalError().Message, http.StatusInternalServerError)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
