package handler

import (
	"context"

	"github.com/hitoshi/searchsaver/internal/auth"
	"github.com/hitoshi/searchsaver/internal/links"
	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/search"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Signup(ctx context.Context, email, password, confirm string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	Search(ctx context.Context, query, engineID string) (*search.Response, error)
	// CheckCredentials はエンジン解決より先に報告すべき設定不足（APIキー）を返す。
	CheckCredentials() error
}

// LinkServiceInterface は保存リンクのハンドラーが必要とするサービスインターフェース。
type LinkServiceInterface interface {
	Save(ctx context.Context, ownerID string, in links.SaveInput) (*model.SavedLink, error)
	Delete(ctx context.Context, ownerID, linkID string) error
	List(ctx context.Context, ownerID string) ([]*model.SavedLink, error)
	Subscribe(ctx context.Context, ownerID, sessionID string) (*links.Subscription, error)
}

var (
	_ AuthServiceInterface   = (*auth.Service)(nil)
	_ SearchServiceInterface = (*search.Dispatcher)(nil)
	_ LinkServiceInterface   = (*links.Service)(nil)
)
