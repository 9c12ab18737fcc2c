package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/searchsaver/internal/auth"
	"github.com/hitoshi/searchsaver/internal/config"
	"github.com/hitoshi/searchsaver/internal/database"
	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/handler"
	"github.com/hitoshi/searchsaver/internal/links"
	"github.com/hitoshi/searchsaver/internal/logger"
	"github.com/hitoshi/searchsaver/internal/metrics"
	"github.com/hitoshi/searchsaver/internal/middleware"
	"github.com/hitoshi/searchsaver/internal/repository"
	"github.com/hitoshi/searchsaver/internal/search"
	"github.com/hitoshi/searchsaver/internal/security"
	"github.com/hitoshi/searchsaver/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// 起動時の接続確認とシャットダウンのタイムアウト
const (
	startupPingTimeout = 5 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数（.env.local / .env を含む）を読み込む。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, startupPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はWebサーバーモードで起動する。
// SIGINTまたはSIGTERMを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	linkRepo := repository.NewPostgresSavedLinkRepo(db)

	// メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 認証
	provider := auth.NewKratosProvider(cfg.KratosPublicURL, cfg.KratosTimeout, slog.Default())
	authService := auth.NewService(provider, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	}, slog.Default())

	// 検索
	engines := engine.NewRegistry(cfg)
	prefs := engine.NewCookiePreferenceStore(engines, cfg.CookieSecure, cfg.CookieDomain)
	searchClient := search.NewClient(newSearchHTTPClient(cfg), slog.Default(), cfg.SearchEndpoint)
	dispatcher := search.NewDispatcher(
		searchClient, cfg.GoogleAPIKey, engines,
		security.NewSnippetSanitizer(), collector, slog.Default(),
	)
	for _, e := range engines.All() {
		slog.Info("search engine registered",
			slog.String("engine", e.ID),
			slog.String("label", e.Label),
			slog.Bool("configured", e.Configured()),
		)
	}

	// 保存リンクとライブ配信
	notifier, closeNotifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()
	linkService := links.NewService(linkRepo, notifier, collector, slog.Default())
	authService.OnSessionEnd(linkService.ReleaseSession)

	limiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSearch),
	)
	defer limiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    limiter,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		SearchService:   dispatcher,
		EngineRegistry:  engines,
		PreferenceStore: prefs,

		LinkService: linkService,
	})

	// SSEストリームは自身で書き込みデッドラインを解除する
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	// Shutdown開始時にリクエストのcontextを取り消し、開いたままのSSEストリームを終わらせる
	server.RegisterOnShutdown(cancelStreams)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// newSearchHTTPClient は検索API用のHTTPクライアントを返す。
// エンドポイントが外部ホストならSSRF防止付きクライアントを使い、
// ローカルのスタブを指す場合は通常のクライアントにフォールバックする。
func newSearchHTTPClient(cfg *config.Config) *http.Client {
	guard := security.NewOutboundGuard()
	if err := guard.ValidateURL(cfg.SearchEndpoint); err != nil {
		slog.Warn("search endpoint is not a public host; outbound guard disabled",
			slog.String("endpoint", cfg.SearchEndpoint),
			slog.String("reason", err.Error()),
		)
		return &http.Client{Timeout: cfg.SearchTimeout}
	}
	return guard.NewSafeClient(cfg.SearchTimeout)
}

// newNotifier はREDIS_URLが設定されていればRedis、なければプロセス内のNotifierを返す。
func newNotifier(cfg *config.Config) (links.Notifier, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("live updates use in-process notifier")
		return links.NewMemoryNotifier(), func() {}, nil
	}

	n, err := links.NewRedisNotifierWithURL(cfg.RedisURL, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer cancel()
	if err := n.Ping(ctx); err != nil {
		n.Close()
		return nil, nil, err
	}

	slog.Info("live updates use redis notifier", slog.String("redis", redactURL(cfg.RedisURL)))
	return n, func() {
		if err := n.Close(); err != nil {
			slog.Warn("failed to close redis notifier", slog.String("error", err.Error()))
		}
	}, nil
}

// runWorker はワーカーモードで起動する。期限切れセッションを定期的に削除する。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// opts.Downの場合は直近opts.Steps件を取り消す。
func runMigrate(cfg *config.Config, opts MigrateOptions) error {
	dbURL := redactURL(cfg.DatabaseURL)

	if opts.Down {
		slog.Info("rolling back database migrations",
			slog.String("database_url", dbURL),
			slog.Int("steps", opts.Steps),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	} else {
		slog.Info("running database migrations", slog.String("database_url", dbURL))
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// redactURL は接続URLのパスワードをマスクする。パースできない場合は全体を伏せる。
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
