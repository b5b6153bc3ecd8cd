package ingestion

import "unicode/utf8"

// DefaultMaxTokens は 1 フィールドあたりのトークン上限
const DefaultMaxTokens = 8000

// Encoder は決定的なトークナイザ
type Encoder interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// TokenClipper はテキストを先頭から最大トークン数に切り詰める
type TokenClipper struct {
	encoder   Encoder
	maxTokens int
}

// NewTokenClipper は新しい TokenClipper を作成する
func NewTokenClipper(encoder Encoder, maxTokens int) *TokenClipper {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &TokenClipper{encoder: encoder, maxTokens: maxTokens}
}

// MaxTokens はトークン上限を返す
func (c *TokenClipper) MaxTokens() int {
	return c.maxTokens
}

// Clip は既定の上限で切り詰める
func (c *TokenClipper) Clip(text string) string {
	return c.ClipTo(text, c.maxTokens)
}

// ClipTo は text を maxTokens 以下に切り詰める。上限以内ならそのまま返す。
// 切り詰めた結果は再エンコードしても上限以内に収まるため、繰り返し適用しても変化しない。
func (c *TokenClipper) ClipTo(text string, maxTokens int) string {
	tokens := c.encoder.Encode(text)
	if len(tokens) <= maxTokens {
		return text
	}
	if maxTokens <= 0 {
		return ""
	}

	n := maxTokens
	for n > 0 {
		clipped := c.encoder.Decode(tokens[:n])
		if utf8.ValidString(clipped) && len(c.encoder.Encode(clipped)) <= maxTokens {
			return clipped
		}
		n--
	}
	return ""
}

// Count はトークン数を返す
func (c *TokenClipper) Count(text string) int {
	return len(c.encoder.Encode(text))
}
