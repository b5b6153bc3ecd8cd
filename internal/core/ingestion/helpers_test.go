package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jinford/codeqa/internal/core/codeindex"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// byteEncoder は 1 バイトを 1 トークンとして扱う
type byteEncoder struct{}

func (byteEncoder) Encode(text string) []int {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens
}

func (byteEncoder) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b)
}

// stubEmbedder は入力長に応じた 3 次元ベクトルを返す
type stubEmbedder struct {
	mu      sync.Mutex
	calls   int
	err     error
	badText string // この文字列を含む入力には空ベクトルを返す
	batch   int
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.badText != "" && strings.Contains(t, e.badText) {
			out[i] = nil
			continue
		}
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (e *stubEmbedder) MaxBatchSize() int {
	if e.batch == 0 {
		return 2
	}
	return e.batch
}

// memStore はメモリ上のストア
type memStore struct {
	mu        sync.Mutex
	tables    map[string][]codeindex.Row
	failAddTo string
	closed    bool
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string][]codeindex.Row)}
}

func (s *memStore) CreateTable(ctx context.Context, name string, schema codeindex.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = []codeindex.Row{}
	return nil
}

func (s *memStore) AddRows(ctx context.Context, name string, schema codeindex.Schema, rows []codeindex.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.failAddTo {
		return errors.New("add rows failed")
	}
	s.tables[name] = append(s.tables[name], rows...)
	return nil
}

func (s *memStore) DropTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

func (s *memStore) TableNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) HybridSearch(ctx context.Context, req codeindex.SearchRequest) ([]codeindex.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[req.Table]
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return rows, nil
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

type memOpener struct {
	store *memStore
	dirs  []string
}

func (o *memOpener) Open(ctx context.Context, artifactsDir string) (codeindex.Store, error) {
	o.dirs = append(o.dirs, artifactsDir)
	return o.store, nil
}

// lineParser は "class X" と "def y" の行をエンティティとして扱う簡易パーサ
type lineParser struct{}

func (lineParser) Parse(ctx context.Context, file SourceFile) (*ParsedFile, error) {
	if strings.Contains(file.Content, "SYNTAX ERROR") {
		return nil, errors.New("syntax error")
	}
	res := &ParsedFile{}
	current := NoClass
	for i, line := range strings.Split(file.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "class "):
			name := strings.TrimSuffix(strings.Fields(trimmed)[1], ":")
			current = name
			res.Classes = append(res.Classes, ClassEntity{
				FilePath:   file.Path,
				ClassName:  name,
				SourceCode: line,
				Line:       i + 1,
			})
		case strings.HasPrefix(trimmed, "def "):
			name := strings.SplitN(strings.TrimPrefix(trimmed, "def "), "(", 2)[0]
			class := current
			if !strings.HasPrefix(line, " ") {
				class = NoClass
			}
			res.Methods = append(res.Methods, MethodEntity{
				FilePath:   file.Path,
				ClassName:  class,
				Name:       name,
				SourceCode: trimmed,
				Line:       i + 1,
			})
		}
	}
	return res, nil
}
