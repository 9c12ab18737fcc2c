package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSearchEndpoint はGoogle Custom Search JSON APIのエンドポイント。
const DefaultSearchEndpoint = "https://www.googleapis.com/customsearch/v1"

// envFiles は起動時に読み込む.envファイル。先に読んだものが優先される。
// 既にプロセス環境に設定されている値は上書きしない。
var envFiles = []string{".env.local", ".env"}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity provider (Ory Kratos)
	KratosPublicURL string
	KratosTimeout   time.Duration

	// Search
	GoogleAPIKey   string
	Engine1CX      string
	Engine2CX      string
	Engine1Label   string
	Engine2Label   string
	SearchEndpoint string
	SearchTimeout  time.Duration

	// Realtime push
	RedisURL string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitSearch  int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// .env.local / .env が存在すれば先に読み込む（既存の環境変数が優先）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.KratosPublicURL = os.Getenv("KRATOS_PUBLIC_URL")
	if cfg.KratosPublicURL == "" {
		missing = append(missing, "KRATOS_PUBLIC_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Search: 未設定でも起動は可能。検索実行時にインラインでエラーを返す。
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.Engine1CX = getEnvString("GOOGLE_CX_1", os.Getenv("GOOGLE_CX"))
	cfg.Engine2CX = os.Getenv("GOOGLE_CX_2")
	cfg.Engine1Label = getEnvString("GOOGLE_CX_1_LABEL", "Engine 1")
	cfg.Engine2Label = getEnvString("GOOGLE_CX_2_LABEL", "Engine 2")
	cfg.SearchEndpoint = getEnvString("SEARCH_ENDPOINT", DefaultSearchEndpoint)
	cfg.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", 10*time.Second)

	// Optional fields with defaults
	cfg.KratosTimeout = getEnvDuration("KRATOS_TIMEOUT", 10*time.Second)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSearch = getEnvInt("RATE_LIMIT_SEARCH", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	return cfg, nil
}

// loadEnvFiles は存在する.envファイルを読み込む。
// ファイルが無い、または読めない場合は何もしない。
func loadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		_ = godotenv.Load(name)
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
