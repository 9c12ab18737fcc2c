package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/searchsaver/internal/model"
)

// PostgresSavedLinkRepo はPostgreSQLを使用した保存済みリンクリポジトリ。
type PostgresSavedLinkRepo struct {
	db *sql.DB
}

// NewPostgresSavedLinkRepo はPostgresSavedLinkRepoを生成する。
func NewPostgresSavedLinkRepo(db *sql.DB) *PostgresSavedLinkRepo {
	return &PostgresSavedLinkRepo{db: db}
}

// Create はリンクを保存する。
// IDが空の場合はUUIDを採番し、created_atはDBのnow()で確定させて書き戻す。
func (r *PostgresSavedLinkRepo) Create(ctx context.Context, link *model.SavedLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO saved_links (id, owner_id, title, url, snippet, engine)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		link.ID, link.OwnerID, link.Title, link.URL, link.Snippet, link.Engine,
	).Scan(&link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create saved link: %w", err)
	}
	return nil
}

// ListByOwner は所有者のリンクを新しい順で返す。
// 同一時刻の場合はIDの降順で順序を確定させる。
func (r *PostgresSavedLinkRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.SavedLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, title, url, snippet, engine, created_at
		 FROM saved_links
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved links: %w", err)
	}
	defer rows.Close()

	links := []*model.SavedLink{}
	for rows.Next() {
		l := &model.SavedLink{}
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Title, &l.URL, &l.Snippet, &l.Engine, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate saved links: %w", err)
	}

	return links, nil
}

// DeleteByOwner は所有者のリンクを1件削除する。
func (r *PostgresSavedLinkRepo) DeleteByOwner(ctx context.Context, ownerID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		// UUID形式でないIDはDBに問い合わせるまでもなく存在しない
		return false, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM saved_links WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete saved link: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ SavedLinkRepository = (*PostgresSavedLinkRepo)(nil)
