// Package model はドメインモデルを定義する。
package model

import "time"

// Session はユーザーのログインセッションを表す。
// UserIDとEmailは外部IdPのidentityから取得した値をそのまま保持する。
type Session struct {
	ID            string
	UserID        string
	Email         string
	ProviderToken string // IdPのセッショントークン。クライアントには渡さない。
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// SessionState はリクエスト単位のセッション解決状態を表す。
type SessionState string

const (
	// SessionStateUninitialized は解決前の状態。
	SessionStateUninitialized SessionState = "uninitialized"
	// SessionStateResolving はCookieからセッションを照会している状態。
	SessionStateResolving SessionState = "resolving"
	// SessionStateAuthenticated は有効なセッションが見つかった状態。
	SessionStateAuthenticated SessionState = "authenticated"
	// SessionStateAnonymous はセッションが存在しない、または期限切れの状態。
	SessionStateAnonymous SessionState = "anonymous"
)

// Viewer はハンドラーに注入される現在の閲覧者。
// Stateがauthenticatedの場合のみSessionが非nilになる。
type Viewer struct {
	State   SessionState
	Session *Session
}

// IsAuthenticated は閲覧者が認証済みかどうかを返す。
func (v *Viewer) IsAuthenticated() bool {
	return v != nil && v.State == SessionStateAuthenticated && v.Session != nil
}

// UserID は認証済みの場合にユーザーIDを返す。未認証の場合は空文字列。
func (v *Viewer) UserID() string {
	if !v.IsAuthenticated() {
		return ""
	}
	return v.Session.UserID
}
