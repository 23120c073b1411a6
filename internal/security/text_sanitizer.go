// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はプロフィール項目（氏名・住所・関心分野など）に含まれる
// マークアップを除去し、画面やメールにそのまま埋め込める平文にする。
// bluemondayのStrictPolicyを使用し、すべてのタグを取り除く。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は平文フィールドのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はタグを除去し、前後の空白を取り除いた平文を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはゴルーチン安全なので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去した平文を返す。
// StrictPolicyはエスケープ済みの文字列を返すため、平文に戻してから保存する。
// HTMLへの出力時はテンプレート側で再度エスケープされる。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
