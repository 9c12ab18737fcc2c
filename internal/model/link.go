// Package model はドメインモデルを定義する。
package model

import "time"

// SavedLink はユーザーが保存した検索結果を表す。
// 作成と削除のみで、保存後に更新されることはない。
type SavedLink struct {
	ID        string
	OwnerID   string
	Title     string
	URL       string
	Snippet   string
	Engine    string // 保存時に選択されていたエンジンの表示ラベル
	CreatedAt time.Time
}

// DisplayTitle は表示用のタイトルを返す。タイトルが空の場合はURLを使う。
func (l SavedLink) DisplayTitle() string {
	if l.Title == "" {
		return l.URL
	}
	return l.Title
}

// SearchResult は検索APIの1件分の結果を表す。
type SearchResult struct {
	Title       string
	Link        string
	Snippet     string
	HTMLSnippet string // サニタイズ済み
	CacheID     string
}

// Key はリスト描画時の識別キーを返す。cacheIdがなければリンクを使う。
func (r SearchResult) Key() string {
	if r.CacheID != "" {
		return r.CacheID
	}
	return r.Link
}
