// Package security はアプリケーションのセキュリティ機能を提供する。
//
// SnippetSanitizer は検索APIが返すhtmlSnippetをサニタイズする。
// 検索キーワードの強調表示に使われる最小限のインラインタグのみを通過させる。
package security

import "github.com/microcosm-cc/bluemonday"

// SnippetSanitizer はスニペットHTMLのサニタイズ機能のインターフェース。
type SnippetSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// snippetSanitizer はSnippetSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type snippetSanitizer struct {
	policy *bluemonday.Policy
}

// NewSnippetSanitizer はSnippetSanitizerを生成する。
// 許可タグ: b, i, em, strong, br（属性は一切許可しない）
func NewSnippetSanitizer() *snippetSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "em", "strong", "br")

	return &snippetSanitizer{
		policy: p,
	}
}

// Sanitize はスニペットHTMLをサニタイズする。
func (s *snippetSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
