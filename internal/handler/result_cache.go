package handler

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hitoshi/searchsaver/internal/model"
)

// 直前の検索結果を保持するセッション数と保持期間
const (
	resultCacheSize = 1024
	resultCacheTTL  = 30 * time.Minute
)

// lastSearch はセッションごとの直前の検索。
type lastSearch struct {
	query    string
	engineID string
	results  []model.SearchResult
}

// resultCache はセッションIDごとに直前の検索結果を保持する。
// 保存・削除などの画面操作の後、検索APIを呼ばずに結果を再表示するために使う。
type resultCache struct {
	entries *expirable.LRU[string, lastSearch]
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	return &resultCache{entries: expirable.NewLRU[string, lastSearch](size, nil, ttl)}
}

func (c *resultCache) put(sessionID, query, engineID string, results []model.SearchResult) {
	c.entries.Add(sessionID, lastSearch{query: query, engineID: engineID, results: results})
}

// get はクエリとエンジンが一致する場合のみ結果を返す。
func (c *resultCache) get(sessionID, query, engineID string) ([]model.SearchResult, bool) {
	e, ok := c.entries.Get(sessionID)
	if !ok || e.query != query || e.engineID != engineID {
		return nil, false
	}
	return e.results, true
}
