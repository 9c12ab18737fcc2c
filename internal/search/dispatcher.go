package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/metrics"
	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/security"
)

// 設定不足時に画面へそのまま表示するメッセージ
const (
	MsgMissingAPIKey = "Missing GOOGLE_API_KEY in .env.local"
	MsgMissingCX1    = "Missing GOOGLE_CX_1 (or GOOGLE_CX) in .env.local"
	MsgMissingCX2    = "Missing GOOGLE_CX_2 in .env.local"
)

// ConfigError は検索に必要な設定が不足していることを表す。
// ネットワーク呼び出しの前に返される。
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// RequestError は検索APIの呼び出しに失敗したことを表す。
// Statusは上流が返したHTTPステータス（通信エラーの場合は0）。
type RequestError struct {
	Message string
	Status  int
}

func (e *RequestError) Error() string { return e.Message }

// Response は1回の検索結果。Resultsは0件でもnilにならない。
type Response struct {
	Query       string
	EngineID    string
	EngineLabel string
	Results     []model.SearchResult
}

// Dispatcher は選択されたエンジンで検索を実行する。
type Dispatcher struct {
	client    *Client
	apiKey    string
	registry  *engine.Registry
	sanitizer security.SnippetSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	client *Client,
	apiKey string,
	registry *engine.Registry,
	sanitizer security.SnippetSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		client:    client,
		apiKey:    apiKey,
		registry:  registry,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
	}
}

// Search はqueryを指定エンジンで検索する。
// 設定の検証はAPIキー、エンジンIDの順で行い、不足があればリクエストを送らない。
func (d *Dispatcher) Search(ctx context.Context, query, engineID string) (*Response, error) {
	if err := d.checkConfig(engineID); err != nil {
		d.metrics.RecordSearch(engineID, metrics.OutcomeConfigError)
		return nil, err
	}
	eng, _ := d.registry.Lookup(engineID)

	start := time.Now()
	items, status, err := d.client.fetch(ctx, d.apiKey, eng.CX, query)
	d.metrics.RecordSearchLatency(time.Since(start))
	if status != 0 {
		d.metrics.RecordUpstreamStatus(status)
	}
	if err != nil {
		d.metrics.RecordSearch(engineID, metrics.OutcomeError)
		var upErr *upstreamError
		if errors.As(err, &upErr) {
			return nil, &RequestError{Message: upErr.Error(), Status: upErr.status}
		}
		return nil, &RequestError{Message: err.Error(), Status: status}
	}

	results := make([]model.SearchResult, 0, len(items))
	for _, it := range items {
		results = append(results, model.SearchResult{
			Title:       it.Title,
			Link:        it.Link,
			Snippet:     it.Snippet,
			HTMLSnippet: d.sanitizer.Sanitize(it.HTMLSnippet),
			CacheID:     it.CacheID,
		})
	}

	d.metrics.RecordSearch(engineID, metrics.OutcomeSuccess)
	d.logger.Info("search completed",
		slog.String("engine", engineID),
		slog.Int("results", len(results)),
		slog.Int("query_length", len(strings.TrimSpace(query))),
	)

	return &Response{
		Query:       query,
		EngineID:    engineID,
		EngineLabel: eng.Label,
		Results:     results,
	}, nil
}

// CheckCredentials はAPIキーが設定済みかを検証する。
// エンジンを決める前に呼び出せるよう、エンジンの検証とは分けている。
func (d *Dispatcher) CheckCredentials() error {
	if d.apiKey == "" {
		return &ConfigError{Message: MsgMissingAPIKey}
	}
	return nil
}

// checkConfig はAPIキーと選択エンジンのCXが設定済みかを検証する。
func (d *Dispatcher) checkConfig(engineID string) error {
	if err := d.CheckCredentials(); err != nil {
		return err
	}

	eng, ok := d.registry.Lookup(engineID)
	if !ok {
		return &ConfigError{Message: "Unknown search engine: " + engineID}
	}
	if !eng.Configured() {
		if engineID == engine.ID2 {
			return &ConfigError{Message: MsgMissingCX2}
		}
		return &ConfigError{Message: MsgMissingCX1}
	}
	return nil
}
