package ask

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
	"github.com/jinford/codeqa/internal/core/search"
)

type stubLLM struct {
	system string
	user   string
}

func (l *stubLLM) Complete(ctx context.Context, system, user string) (string, error) {
	l.system = system
	l.user = user
	return "Use Calculator.add", nil
}

type stubEmbedder struct{}

func (stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (stubEmbedder) MaxBatchSize() int { return 1 }

type fixedStore struct {
	rows map[string][]codeindex.Row
}

func (s *fixedStore) CreateTable(context.Context, string, codeindex.Schema) error { return nil }
func (s *fixedStore) AddRows(context.Context, string, codeindex.Schema, []codeindex.Row) error {
	return nil
}
func (s *fixedStore) DropTable(context.Context, string) error { return nil }
func (s *fixedStore) TableNames(context.Context) ([]string, error) {
	return []string{"toy_method", "toy_class"}, nil
}
func (s *fixedStore) HybridSearch(ctx context.Context, req codeindex.SearchRequest) ([]codeindex.Row, error) {
	return s.rows[req.Table], nil
}
func (s *fixedStore) Close() error { return nil }

type fixedOpener struct{ store codeindex.Store }

func (o fixedOpener) Open(context.Context, string) (codeindex.Store, error) { return o.store, nil }

func newSearchService(t *testing.T) *search.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	layout := project.NewLayout(t.TempDir())
	require.NoError(t, os.MkdirAll(layout.ArtifactsDir("toy"), 0o755))

	store := &fixedStore{rows: map[string][]codeindex.Row{
		"toy_method": {{Fields: codeindex.MethodRecord{
			Code: "def add(self, a, b): return a + b", FilePath: "math_utils.py", ClassName: "Calculator", Name: "add",
		}.Fields()}},
		"toy_class": {{Fields: codeindex.PlaceholderClassRecord().Fields()}},
	}}
	r, err := search.NewRetriever(layout, fixedOpener{store: store}, stubEmbedder{}, search.WithRetrieverLogger(logger))
	require.NoError(t, err)
	return search.NewService(r, layout, search.WithSearchLogger(logger))
}

func TestAskService_Ask(t *testing.T) {
	llm := &stubLLM{}
	svc := NewAskService(newSearchService(t), llm, WithAskLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res, err := svc.Ask(context.Background(), AskParams{Codebase: "toy", Question: "how do I add?"})
	require.NoError(t, err)

	assert.Equal(t, "Use Calculator.add", res.Answer)
	assert.Equal(t, "how do I add?", llm.user)
	assert.Contains(t, llm.system, "Code:\ndef add(self, a, b): return a + b")
	require.Len(t, res.Sources, 1)
	assert.Equal(t, SourceReference{FilePath: "math_utils.py", Name: "add", Kind: "method"}, res.Sources[0])
}

func TestAskService_NotConfigured(t *testing.T) {
	svc := NewAskService(newSearchService(t), nil)
	_, err := svc.Ask(context.Background(), AskParams{Codebase: "toy", Question: "q"})
	assert.ErrorIs(t, err, ErrChatNotConfigured)
}

func TestAskService_NotIngested(t *testing.T) {
	svc := NewAskService(newSearchService(t), &stubLLM{})
	_, err := svc.Ask(context.Background(), AskParams{Codebase: "ghost", Question: "q"})
	assert.ErrorIs(t, err, search.ErrNotIngested)
}

func TestBuildChatSystemPrompt(t *testing.T) {
	assert.Contains(t, BuildChatSystemPrompt(""), "(no related code was found)")
	assert.Contains(t, BuildChatSystemPrompt("File: a.py"), "## Context\nFile: a.py\n")
}
