// Package links はユーザーごとの保存リンクの作成・削除・一覧とライブ配信を提供する。
package links

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/searchsaver/internal/metrics"
	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/repository"
	"github.com/hitoshi/searchsaver/internal/security"
)

// SaveInput はリンク保存時の入力。
type SaveInput struct {
	Title       string
	URL         string
	Snippet     string
	EngineLabel string
}

// Service は保存リンクのビジネスロジックを提供する。
type Service struct {
	repo     repository.SavedLinkRepository
	notifier Notifier
	metrics  metrics.MetricsCollector
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]map[*Subscription]struct{}
}

// NewService はServiceを生成する。
func NewService(
	repo repository.SavedLinkRepository,
	notifier Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		metrics:  collector,
		logger:   logger,
		sessions: make(map[string]map[*Subscription]struct{}),
	}
}

// Save はリンクを保存し、所有者の購読者へ変更を通知する。
// URLはhttp/httpsかつホスト付きである必要がある。
func (s *Service) Save(ctx context.Context, ownerID string, in SaveInput) (*model.SavedLink, error) {
	if ownerID == "" {
		return nil, model.NewUnauthorizedError()
	}

	linkURL := strings.TrimSpace(in.URL)
	if err := security.ValidateLinkURL(linkURL); err != nil {
		return nil, model.NewInvalidLinkURLError(err.Error())
	}

	link := &model.SavedLink{
		OwnerID: ownerID,
		Title:   strings.TrimSpace(in.Title),
		URL:     linkURL,
		Snippet: in.Snippet,
		Engine:  in.EngineLabel,
	}
	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("save link: %w", err)
	}

	s.metrics.RecordLinkSaved()
	s.publish(ctx, ownerID)

	s.logger.Info("link saved",
		slog.String("user_id", ownerID),
		slog.String("link_id", link.ID),
		slog.String("engine", link.Engine),
	)
	return link, nil
}

// Delete は所有者のリンクを削除し、変更を通知する。
// 対象が存在しない、または他人のリンクの場合はLINK_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, ownerID, linkID string) error {
	if ownerID == "" {
		return model.NewUnauthorizedError()
	}

	deleted, err := s.repo.DeleteByOwner(ctx, ownerID, linkID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if !deleted {
		return model.NewLinkNotFoundError(linkID)
	}

	s.metrics.RecordLinkDeleted()
	s.publish(ctx, ownerID)

	s.logger.Info("link deleted",
		slog.String("user_id", ownerID),
		slog.String("link_id", linkID),
	)
	return nil
}

// List は所有者のリンクを新しい順で返す。0件の場合は空スライス。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.SavedLink, error) {
	if ownerID == "" {
		return nil, model.NewUnauthorizedError()
	}

	links, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	if links == nil {
		links = []*model.SavedLink{}
	}
	return links, nil
}

// publish は変更を通知する。書き込み自体は成功しているため、失敗はログのみ。
func (s *Service) publish(ctx context.Context, ownerID string) {
	if err := s.notifier.Publish(ctx, ownerID); err != nil {
		s.logger.Warn("failed to publish link change",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe は所有者の保存リストのライブ購読を開始する。
// 最初のスナップショットは即座に配信され、以降は変更のたびに全件のスナップショットが配信される。
// 購読はClose、ctxのキャンセル、またはReleaseSession(sessionID)で解放される。
func (s *Service) Subscribe(ctx context.Context, ownerID, sessionID string) (*Subscription, error) {
	if ownerID == "" {
		return nil, model.NewUnauthorizedError()
	}

	// 初回読み込みとの間の変更を取りこぼさないよう、先に通知の受信を開始する
	changes, stopListen, err := s.notifier.Listen(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listen link changes: %w", err)
	}

	initial, err := s.List(ctx, ownerID)
	if err != nil {
		stopListen()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(ownerID, sessionID, cancel)
	sub.deliver(initial)

	s.track(sub)
	s.metrics.SubscriptionOpened()
	s.metrics.RecordSnapshotPushed()

	go s.run(subCtx, sub, changes, stopListen)

	return sub, nil
}

// run は変更通知を受けるたびにリストを読み直して配信する。
func (s *Service) run(ctx context.Context, sub *Subscription, changes <-chan struct{}, stopListen func()) {
	defer func() {
		stopListen()
		s.untrack(sub)
		s.metrics.SubscriptionClosed()
		sub.finish()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			links, err := s.List(ctx, sub.ownerID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("failed to reload saved links",
					slog.String("user_id", sub.ownerID),
					slog.String("error", err.Error()),
				)
				continue
			}
			sub.deliver(links)
			s.metrics.RecordSnapshotPushed()
		}
	}
}

// ReleaseSession はセッションに紐づく全ての購読を解放する。ログアウト時に呼ばれる。
func (s *Service) ReleaseSession(sessionID string) {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.sessions[sessionID]))
	for sub := range s.sessions[sessionID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// ActiveSubscriptions はセッションに紐づく購読数を返す。
func (s *Service) ActiveSubscriptions(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}

func (s *Service) track(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sub.sessionID] == nil {
		s.sessions[sub.sessionID] = make(map[*Subscription]struct{})
	}
	s.sessions[sub.sessionID][sub] = struct{}{}
}

func (s *Service) untrack(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions[sub.sessionID], sub)
	if len(s.sessions[sub.sessionID]) == 0 {
		delete(s.sessions, sub.sessionID)
	}
}
