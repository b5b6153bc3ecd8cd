package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEmbedder struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.queries = append(e.queries, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *stubEmbedder) MaxBatchSize() int { return 8 }

// keywordStore はクエリ語を含む行を先に返すストア
type keywordStore struct {
	tables map[string][]codeindex.Row
	err    error
}

func (s *keywordStore) CreateTable(ctx context.Context, name string, schema codeindex.Schema) error {
	return nil
}

func (s *keywordStore) AddRows(ctx context.Context, name string, schema codeindex.Schema, rows []codeindex.Row) error {
	return nil
}

func (s *keywordStore) DropTable(ctx context.Context, name string) error { return nil }

func (s *keywordStore) TableNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	return names, nil
}

func (s *keywordStore) HybridSearch(ctx context.Context, req codeindex.SearchRequest) ([]codeindex.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	terms := codeindex.QueryTerms(req.Query)
	var hits, rest []codeindex.Row
	for _, row := range s.tables[req.Table] {
		text := strings.ToLower(row.Fields[req.Schema.SourceField])
		matched := false
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched = true
				break
			}
		}
		if matched {
			hits = append(hits, row)
		} else {
			rest = append(rest, row)
		}
	}
	out := append(hits, rest...)
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (s *keywordStore) Close() error { return nil }

type countingOpener struct {
	store codeindex.Store
	opens int
}

func (o *countingOpener) Open(ctx context.Context, dir string) (codeindex.Store, error) {
	o.opens++
	return o.store, nil
}

type stubCompleter struct {
	calls []string
	reply string
	err   error
}

func (c *stubCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	c.calls = append(c.calls, user)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

// reverseReranker は入力を逆順に並べる
type reverseReranker struct {
	calls int
}

func (r *reverseReranker) Rerank(ctx context.Context, query string, texts []string) ([]int, error) {
	r.calls++
	order := make([]int, len(texts))
	for i := range texts {
		order[i] = len(texts) - 1 - i
	}
	return order, nil
}

type failingReranker struct{}

func (failingReranker) Rerank(ctx context.Context, query string, texts []string) ([]int, error) {
	return nil, errors.New("rerank failed")
}

func methodRow(name, code string) codeindex.Row {
	return codeindex.Row{Fields: codeindex.MethodRecord{
		Code: code, SourceCode: code, FilePath: "math_utils.py", ClassName: "Calculator", Name: name,
	}.Fields(), Embedding: []float32{1, 0, 0}}
}

func classRow(name string) codeindex.Row {
	return codeindex.Row{Fields: codeindex.ClassRecord{
		SourceCode: "File: math_utils.py\n\nClass: " + name + "\n\nSource Code:\nclass " + name + ":\n\n",
		FilePath:   "math_utils.py",
		ClassName:  name,
		References: "main.py:3: " + name + "()",
	}.Fields(), Embedding: []float32{1, 0, 0}}
}

// toyProject は ingest 済みの toy プロジェクトを用意する
func toyProject(t *testing.T) (*project.Layout, *keywordStore) {
	t.Helper()
	layout := project.NewLayout(t.TempDir())
	require.NoError(t, os.MkdirAll(layout.ArtifactsDir("toy"), 0o755))

	store := &keywordStore{tables: map[string][]codeindex.Row{
		"toy_method": {
			methodRow("sub", "def sub(self, a, b):\n    return a - b"),
			methodRow("mul", "def mul(self, a, b):\n    return a * b"),
			methodRow("div", "def div(self, a, b):\n    return a / b"),
			methodRow("neg", "def neg(self, a):\n    return -a"),
			methodRow("add", "def add(self, a, b):\n    return a + b"),
			methodRow("pow", "def pow(self, a, b):\n    return a ** b"),
		},
		"toy_class": {
			classRow("Calculator"),
		},
	}}
	return layout, store
}
