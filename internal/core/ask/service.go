package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/search"
)

// ErrChatNotConfigured はチャット用の LLM が設定されていない場合のエラー
var ErrChatNotConfigured = errors.New("chat is not configured: OPENAI_API_KEY is not set")

// LLMClient はLLM通信インターフェース
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// AskService は質問応答のビジネスロジックを提供する
type AskService struct {
	searchService *search.Service
	llm           LLMClient
	logger        *slog.Logger
}

// AskServiceOption は AskService のオプション設定
type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// NewAskService は新しいAskServiceを作成する。llm が nil の場合 Ask は ErrChatNotConfigured を返す
func NewAskService(
	searchService *search.Service,
	llm LLMClient,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		searchService: searchService,
		llm:           llm,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask はコードベースから集めたコンテキストを基に質問へ回答する
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	if params.Question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if params.Codebase == "" {
		return nil, fmt.Errorf("codebase is required")
	}
	if s.llm == nil {
		return nil, ErrChatNotConfigured
	}

	retrieval, err := s.searchService.Retrieve(ctx, params.Codebase, params.Question, params.Rerank)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	contextText := search.AssembleContext(retrieval.Methods, retrieval.Classes)

	s.logger.Info("回答を生成します",
		"codebase", params.Codebase,
		"methods", len(retrieval.Methods),
		"classes", len(retrieval.Classes),
	)

	answer, err := s.llm.Complete(ctx, BuildChatSystemPrompt(contextText), params.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &AskResult{
		Answer:  answer,
		Context: contextText,
		Sources: sources(retrieval),
	}, nil
}

func sources(r *search.Retrieval) []SourceReference {
	refs := make([]SourceReference, 0, len(r.Methods)+len(r.Classes))
	for _, m := range r.Methods {
		refs = append(refs, SourceReference{FilePath: m.FilePath, Name: m.Name, Kind: "method"})
	}
	for _, c := range r.Classes {
		if c.FilePath == codeindex.Sentinel {
			continue
		}
		refs = append(refs, SourceReference{FilePath: c.FilePath, Name: c.ClassName, Kind: "class"})
	}
	return refs
}
