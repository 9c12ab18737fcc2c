// Package search はGoogle Custom Search JSON APIへの検索リクエストを提供する。
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// maxResponseSize はレスポンスボディの最大読み取りサイズ（2MB）。
const maxResponseSize = 2 << 20

// apiResponse はCustom Search APIのレスポンスのうち使用する部分。
type apiResponse struct {
	Items []apiItem `json:"items"`
}

type apiItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	HTMLSnippet string `json:"htmlSnippet"`
	CacheID     string `json:"cacheId"`
}

// Client はCustom Search APIのHTTPクライアント。
// 1回の検索につきGETリクエストを1回だけ送信する。リトライは行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewClient はClientを生成する。endpointにはテスト用サーバーのURLも指定できる。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// upstreamError はAPIが2xx以外のステータスを返したことを表す。
type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("Custom Search failed (%d)", e.status)
}

// fetch はkey・cx・qを付けてAPIを呼び出し、itemsを返す。
// itemsが存在しない場合は空スライスを返す。
func (c *Client) fetch(ctx context.Context, apiKey, cx, query string) ([]apiItem, int, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid search endpoint: %w", err)
	}

	q := reqURL.Query()
	q.Set("key", apiKey)
	q.Set("cx", cx)
	q.Set("q", query)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "searchsaver/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Custom Search APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Custom Search APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, resp.StatusCode, &upstreamError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read search response: %w", err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Error("Custom Search APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, resp.StatusCode, fmt.Errorf("failed to parse search response: %w", err)
	}

	if decoded.Items == nil {
		return []apiItem{}, resp.StatusCode, nil
	}
	return decoded.Items, resp.StatusCode, nil
}
