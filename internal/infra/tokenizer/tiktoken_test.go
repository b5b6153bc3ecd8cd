package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// newTestTokenizer は BPE ファイルを取得できない環境ではテストをスキップする
func newTestTokenizer(t *testing.T) *Tiktoken {
	t.Helper()
	if testing.Short() {
		t.Skip("tiktoken downloads its vocabulary on first use")
	}
	tk, err := New("")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	return tk
}

func TestTiktoken_RoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	text := "def add(self, a, b):\n    return a + b\n"
	assert.Equal(t, text, tk.Decode(tk.Encode(text)))
}

func TestTiktoken_ClipInvariant(t *testing.T) {
	tk := newTestTokenizer(t)
	clipper := ingestion.NewTokenClipper(tk, 16)

	inputs := []string{
		strings.Repeat("calculator ", 100),
		strings.Repeat("日本語のコメント ", 40),
		"short",
	}
	for _, in := range inputs {
		once := clipper.Clip(in)
		require.LessOrEqual(t, len(tk.Encode(once)), 16)
		assert.Equal(t, once, clipper.Clip(once))
	}
	assert.Equal(t, "short", clipper.Clip("short"))
}
