// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/searchsaver/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない、または期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SavedLinkRepository は保存済みリンクの永続化インターフェース。
type SavedLinkRepository interface {
	// Create はリンクを保存する。IDとCreatedAtはストア側で採番され、linkに書き戻される。
	Create(ctx context.Context, link *model.SavedLink) error
	// ListByOwner は所有者のリンクを新しい順（created_at DESC, id DESC）で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.SavedLink, error)
	// DeleteByOwner は所有者のリンクを1件削除する。
	// 対象が存在しない（または他人のリンクの）場合はfalseを返す。
	DeleteByOwner(ctx context.Context, ownerID, id string) (bool, error)
}
