package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 画面
	Renderer *Renderer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 検索・エンジン選択
	SearchService   SearchServiceInterface
	EngineRegistry  *engine.Registry
	PreferenceStore engine.PreferenceStore

	// 保存リンク
	LinkService LinkServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → SessionResolver → CSRF
//
// 画面ルートは未認証時に/authへ303で転送し、APIルートは401を返す。
// APIルートにはユーザー単位のレート制限を適用し、検索には専用の制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = MustNewRenderer()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionResolver(deps.SessionFinder))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService, renderer, deps.AuthConfig)
	searchHandler := NewSearchHandler(deps.SearchService, deps.EngineRegistry, deps.PreferenceStore)
	linkHandler := NewLinkHandler(deps.LinkService, deps.EngineRegistry, deps.PreferenceStore)
	viewHandler := NewViewHandler(deps.SearchService, deps.LinkService, deps.EngineRegistry, deps.PreferenceStore, renderer)

	// --- 認証不要のルート ---

	r.Handle("/static/*", StaticHandler())
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/", authHandler.Page)
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 画面（未認証は/authへ転送） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSessionRedirect(LoginPath))

		r.Get("/", viewHandler.Home)
		r.Post("/links", viewHandler.SaveLink)
		r.Post("/links/{id}/delete", viewHandler.DeleteLink)
		r.Post("/preferences/engine", viewHandler.SetEngine)
	})

	// --- API（未認証は401） ---
	// ミドルウェアスタック: RequireSession → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/engines", searchHandler.ListEngines)
		r.Put("/api/preferences/engine", searchHandler.UpdatePreference)
		r.With(deps.RateLimiter.SearchMiddleware()).Get("/api/search", searchHandler.Search)

		r.Route("/api/links", func(r chi.Router) {
			r.Get("/", linkHandler.List)
			r.Post("/", linkHandler.Save)
			r.Get("/stream", linkHandler.Stream)
			r.Delete("/{id}", linkHandler.Delete)
		})
	})

	return r
}
