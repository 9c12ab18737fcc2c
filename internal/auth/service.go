// Package auth はIdPを使ったログイン・サインアップとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider    IdentityProvider
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	logger      *slog.Logger

	mu        sync.RWMutex
	listeners []func(sessionID string)
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		provider:    provider,
		sessionRepo: sessionRepo,
		config:      config,
		logger:      logger,
	}
}

// OnSessionEnd はログアウト時に呼ばれるリスナーを登録する。
func (s *Service) OnSessionEnd(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Login はIdPで認証情報を検証し、ローカルセッションを発行する。
// IdPが拒否した場合はIdPのメッセージをそのまま持つAUTH_FAILEDエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if msg := validateLogin(loginInput{Email: email, Password: password}); msg != "" {
		return nil, model.NewValidationError(msg)
	}

	ps, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, s.providerFailure("login", err)
	}

	session, err := s.createSession(ctx, ps)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", session.UserID))
	return session, nil
}

// Signup は入力を検証した上でIdPにアカウントを作成し、ローカルセッションを発行する。
// パスワード長と確認用パスワードの一致はIdPを呼ぶ前に検証する。
func (s *Service) Signup(ctx context.Context, email, password, confirm string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if msg := validateSignup(signupInput{Email: email, Password: password, ConfirmPassword: confirm}); msg != "" {
		return nil, model.NewValidationError(msg)
	}

	ps, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, s.providerFailure("signup", err)
	}

	session, err := s.createSession(ctx, ps)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("user signed up", slog.String("user_id", session.UserID))
	return session, nil
}

// Logout はセッションを破棄する。
// IdP側セッションの失効に失敗してもログに記録するのみでローカルの破棄は行う。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if session != nil && session.ProviderToken != "" {
		if err := s.provider.SignOut(ctx, session.ProviderToken); err != nil {
			s.logger.Warn("failed to revoke provider session",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.notifySessionEnd(sessionID)

	s.logger.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentSession はセッションIDから有効なセッションを取得する。
// 見つからない、または期限切れの場合はnilを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return session, nil
}

// FindByID はCurrentSessionの別名。セッションリゾルバーから使う。
func (s *Service) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.CurrentSession(ctx, sessionID)
}

func (s *Service) notifySessionEnd(sessionID string) {
	s.mu.RLock()
	listeners := make([]func(string), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(sessionID)
	}
}

// providerFailure はIdPのエラーをAPIErrorに変換する。
func (s *Service) providerFailure(operation string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		s.logger.Info("identity provider rejected request",
			slog.String("operation", operation),
			slog.Int("status", perr.Status),
		)
		return model.NewAuthFailedError(perr.Message)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// createSession はIdPのセッションに対応するローカルセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, ps *ProviderSession) (*model.Session, error) {
	if ps == nil || ps.Identity.ID == "" {
		return nil, fmt.Errorf("identity provider returned no identity")
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:            sessionID,
		UserID:        ps.Identity.ID,
		Email:         ps.Identity.Email,
		ProviderToken: ps.Token,
		ExpiresAt:     now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:     now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
