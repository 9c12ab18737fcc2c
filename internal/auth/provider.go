package auth

import (
	"context"
	"fmt"
)

// Identity は外部IdPが管理するユーザーを表す。
type Identity struct {
	ID    string
	Email string
}

// ProviderSession はIdPでのサインイン結果。
// Tokenはログアウトや照会でIdPに提示するセッショントークン。
type ProviderSession struct {
	Token    string
	Identity Identity
}

// IdentityProvider は外部IdPのインターフェース。
// パスワードの検証とアカウント作成はすべてIdP側で行う。
type IdentityProvider interface {
	// SignUp はアカウントを作成してサインインする。
	SignUp(ctx context.Context, email, password string) (*ProviderSession, error)
	// SignIn は認証情報を検証してサインインする。
	SignIn(ctx context.Context, email, password string) (*ProviderSession, error)
	// SignOut はIdP側のセッションを失効させる。
	SignOut(ctx context.Context, token string) error
	// Whoami はセッショントークンに紐づくidentityを返す。
	Whoami(ctx context.Context, token string) (*Identity, error)
}

// ProviderError はIdPが返したエラー。Messageは画面にそのまま表示される。
type ProviderError struct {
	Message string
	Status  int // IdPのHTTPステータス（通信エラーの場合は0）
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("identity provider error (%d): %s", e.Status, e.Message)
	}
	return "identity provider error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }
