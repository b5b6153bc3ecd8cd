package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codeqa/internal/core/ask"
	"github.com/jinford/codeqa/internal/core/ingestion"
	"github.com/jinford/codeqa/internal/core/search"
)

type stubIngester struct {
	input string
	err   error
}

func (s *stubIngester) Ingest(ctx context.Context, input string) (*ingestion.Result, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &ingestion.Result{Slug: "toy", ArtifactsDir: "/data/toy"}, nil
}

type stubSearcher struct {
	codebases []string
	rerank    bool
	listErr   error
}

func (s *stubSearcher) Query(ctx context.Context, codebase, query string, rerank bool) string {
	s.rerank = rerank
	return "context for " + codebase + ": " + query
}

func (s *stubSearcher) List() ([]string, error) {
	return s.codebases, s.listErr
}

type stubAsker struct {
	params ask.AskParams
	err    error
}

func (s *stubAsker) Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return &ask.AskResult{
		Answer:  "Call Calculator.add",
		Sources: []ask.SourceReference{{FilePath: "math_utils.py", Name: "add", Kind: "method"}},
	}, nil
}

func newTestServer(ingester Ingester, searcher Searcher, opts ...Option) *Server {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewServer(ingester, searcher, opts...)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleIngestCodebase(t *testing.T) {
	ingester := &stubIngester{}
	s := newTestServer(ingester, &stubSearcher{})

	res, err := s.handleIngestCodebase(context.Background(), callRequest("ingest_codebase", map[string]any{"dir": "/src/toy"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Added codebase: /data/toy", resultText(t, res))
	assert.Equal(t, "/src/toy", ingester.input)
}

func TestHandleIngestCodebase_Errors(t *testing.T) {
	s := newTestServer(&stubIngester{err: errors.New("clone failed")}, &stubSearcher{})

	res, err := s.handleIngestCodebase(context.Background(), callRequest("ingest_codebase", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleIngestCodebase(context.Background(), callRequest("ingest_codebase", map[string]any{"dir": "https://example.com/a/b"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "clone failed")
}

func TestHandleCodeQA(t *testing.T) {
	searcher := &stubSearcher{}
	s := newTestServer(&stubIngester{}, searcher)

	res, err := s.handleCodeQA(context.Background(), callRequest("codeqa", map[string]any{"codebase": "toy", "query": "add"}))
	require.NoError(t, err)
	assert.Equal(t, "context for toy: add", resultText(t, res))
	assert.True(t, searcher.rerank, "rerank defaults to true")

	_, err = s.handleCodeQA(context.Background(), callRequest("codeqa", map[string]any{"codebase": "toy", "query": "add", "rerank": false}))
	require.NoError(t, err)
	assert.False(t, searcher.rerank)

	res, err = s.handleCodeQA(context.Background(), callRequest("codeqa", map[string]any{"codebase": "toy"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleListCodebases(t *testing.T) {
	tests := []struct {
		name     string
		searcher *stubSearcher
		want     string
		isError  bool
	}{
		{name: "empty", searcher: &stubSearcher{}, want: "No codebases found."},
		{name: "some", searcher: &stubSearcher{codebases: []string{"alpha", "toy"}}, want: "Available codebases:\nalpha\ntoy"},
		{name: "error", searcher: &stubSearcher{listErr: errors.New("permission denied")}, want: "Error listing codebases: permission denied", isError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubIngester{}, tt.searcher)
			res, err := s.handleListCodebases(context.Background(), callRequest("list_codebases", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.isError, res.IsError)
			assert.Equal(t, tt.want, resultText(t, res))
		})
	}
}

func TestHandleAskCodebase(t *testing.T) {
	asker := &stubAsker{}
	s := newTestServer(&stubIngester{}, &stubSearcher{}, WithAsker(asker))

	res, err := s.handleAskCodebase(context.Background(), callRequest("ask_codebase", map[string]any{"codebase": "toy", "question": "how to add?"}))
	require.NoError(t, err)
	assert.Equal(t, "Call Calculator.add\n\nSources:\n- math_utils.py (method add)", resultText(t, res))
	assert.Equal(t, ask.AskParams{Codebase: "toy", Question: "how to add?", Rerank: true}, asker.params)
}

func TestHandleAskCodebase_NotIngested(t *testing.T) {
	asker := &stubAsker{err: &search.NotIngestedError{Slug: "ghost", Tables: []string{"ghost_method"}}}
	s := newTestServer(&stubIngester{}, &stubSearcher{codebases: []string{"toy"}}, WithAsker(asker))

	res, err := s.handleAskCodebase(context.Background(), callRequest("ask_codebase", map[string]any{"codebase": "ghost", "question": "q"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, search.NotFoundMessage("ghost", []string{"toy"}), resultText(t, res))
}

func TestHandleAskCodebase_ChatNotConfigured(t *testing.T) {
	s := newTestServer(&stubIngester{}, &stubSearcher{}, WithAsker(&stubAsker{err: ask.ErrChatNotConfigured}))

	res, err := s.handleAskCodebase(context.Background(), callRequest("ask_codebase", map[string]any{"codebase": "toy", "question": "q"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "OPENAI_API_KEY")
}

func TestServer_ToolsList(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantAsk bool
	}{
		{name: "without asker"},
		{name: "with asker", opts: []Option{WithAsker(&stubAsker{})}, wantAsk: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubIngester{}, &stubSearcher{}, tt.opts...)

			resp := s.mcp.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
			raw, err := json.Marshal(resp)
			require.NoError(t, err)

			body := string(raw)
			assert.Contains(t, body, `"ingest_codebase"`)
			assert.Contains(t, body, `"codeqa"`)
			assert.Contains(t, body, `"list_codebases"`)
			if tt.wantAsk {
				assert.Contains(t, body, `"ask_codebase"`)
			} else {
				assert.NotContains(t, body, `"ask_codebase"`)
			}
		})
	}
}
