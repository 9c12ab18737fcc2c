package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 画面にそのまま表示されるバリデーションメッセージ
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgEmailRequired       = "Email is required"
	MsgPasswordTooShort    = "Password must be at least 6 characters"
	MsgPasswordMismatch    = "Passwords do not match"
)

// MinPasswordLength はサインアップ時のパスワード最小文字数。
const MinPasswordLength = 6

// loginInput はログインフォームの入力。
type loginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// signupInput はサインアップフォームの入力。
// メール形式の検証はIdPに任せる。
type signupInput struct {
	Email           string `validate:"required"`
	Password        string `validate:"min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// signupFieldOrder はエラーを報告するフィールドの優先順。
// パスワード長の不足は確認用パスワードの不一致より先に報告する。
var signupFieldOrder = []string{"Password", "ConfirmPassword", "Email"}

var signupMessages = map[string]string{
	"Password":        MsgPasswordTooShort,
	"ConfirmPassword": MsgPasswordMismatch,
	"Email":           MsgEmailRequired,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateLogin はログイン入力を検証し、表示用メッセージを返す。問題なければ空文字列。
func validateLogin(in loginInput) string {
	if err := validate.Struct(in); err != nil {
		return MsgCredentialsRequired
	}
	return ""
}

// validateSignup はサインアップ入力を検証し、表示用メッセージを返す。問題なければ空文字列。
func validateSignup(in signupInput) string {
	err := validate.Struct(in)
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	failed := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		failed[fe.Field()] = true
	}
	for _, field := range signupFieldOrder {
		if failed[field] {
			return signupMessages[field]
		}
	}
	return strings.TrimSpace(verrs.Error())
}
