// Package tokenizer は tiktoken によるトークナイザを提供する。
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// DefaultEncoding は保存内容の再現性のために固定するエンコーディング
const DefaultEncoding = "cl100k_base"

// Tiktoken は tiktoken を利用した ingestion.Encoder 実装。
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
}

// New は指定したエンコーディングのトークナイザを作成する。空なら cl100k_base
func New(encodingName string) (*Tiktoken, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &Tiktoken{encoding: enc}, nil
}

// Encode はテキストをトークン列にする。特殊トークンは通常のテキストとして扱う
func (t *Tiktoken) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode はトークン列をテキストに戻す
func (t *Tiktoken) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

// インターフェース実装の確認
var _ ingestion.Encoder = (*Tiktoken)(nil)
