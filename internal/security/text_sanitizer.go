package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は上流APIから受け取った文字列をプレーンテキストに変換する。
// 記事の説明文・本文はHTMLを含むことがあるため、保存前に全てのタグを除去する。
type TextSanitizer interface {
	// Text はHTMLタグを除去し、エンティティを復元し、連続する空白を1つにまとめる。
	// 同一入力に対して常に同一出力を返す。エスケープされたタグ（&lt;b&gt;）は
	// 文字列の "<b>" として残るため、出力に再度かけると結果が変わることがある。
	Text(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないTextSanitizerを生成する。
// 生成したインスタンスはゴルーチン間で共有できる。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyはエンティティをエスケープしたまま返す
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}
