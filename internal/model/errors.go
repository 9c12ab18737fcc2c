// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（画面にそのまま表示される）
	Category string // カテゴリ: auth, validation, search, link, config, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeSearchConfig       = "SEARCH_CONFIG_MISSING"
	ErrCodeSearchFailed       = "SEARCH_FAILED"
	ErrCodeInvalidEngine      = "INVALID_ENGINE"
	ErrCodeNoEngineConfigured = "NO_ENGINE_CONFIGURED"
	ErrCodeInvalidLinkURL     = "INVALID_LINK_URL"
	ErrCodeLinkNotFound       = "LINK_NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse the request body.",
		Category: "validation",
		Action:   "Send a valid JSON or form body.",
	}
}

// NewValidationError は入力値のバリデーションエラーを生成する。
// messageは画面にそのまま表示される。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Fix the highlighted field and submit again.",
	}
}

// NewAuthFailedError はIdPが返したエラーメッセージを保持する認証エラーを生成する。
func NewAuthFailedError(providerMessage string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  providerMessage,
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewSearchConfigError は検索設定の不足エラーを生成する。
// ネットワーク呼び出しの前に返される。
func NewSearchConfigError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSearchConfig,
		Message:  message,
		Category: "config",
		Action:   "Set the missing value in the environment and restart the server.",
	}
}

// NewSearchFailedError は検索APIの呼び出し失敗エラーを生成する。
func NewSearchFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSearchFailed,
		Message:  message,
		Category: "search",
		Action:   "Wait a moment and search again.",
	}
}

// NewInvalidEngineError は無効なエンジンIDエラーを生成する。
func NewInvalidEngineError(engineID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEngine,
		Message:  fmt.Sprintf("Unknown search engine: %q", engineID),
		Category: "validation",
		Action:   `Choose engine "1" or "2".`,
	}
}

// NewNoEngineConfiguredError はエンジンが1つも設定されていない場合のエラーを生成する。
func NewNoEngineConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeNoEngineConfigured,
		Message:  "No search engine is configured.",
		Category: "config",
		Action:   "Set GOOGLE_CX_1 or GOOGLE_CX_2 in the environment.",
	}
}

// NewInvalidLinkURLError は保存対象URLが無効な場合のエラーを生成する。
func NewInvalidLinkURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLinkURL,
		Message:  fmt.Sprintf("Invalid link URL: %s", reason),
		Category: "validation",
		Action:   "Only http:// and https:// links can be saved.",
	}
}

// NewLinkNotFoundError は保存済みリンクが見つからない場合のエラーを生成する。
func NewLinkNotFoundError(linkID string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkNotFound,
		Message:  fmt.Sprintf("Saved link not found: %s", linkID),
		Category: "link",
		Action:   "Reload the page to refresh the saved list.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait for the time given in Retry-After and try again.",
	}
}
