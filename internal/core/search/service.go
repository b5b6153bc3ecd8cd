package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jinford/codeqa/internal/core/project"
)

// 検索結果の区分（メトリクス用）
const (
	OutcomeOK          = "ok"
	OutcomeNotIngested = "not_ingested"
	OutcomeError       = "error"
)

// Metrics は検索処理の計測値を受け取る
type Metrics interface {
	ObserveQuery(outcome string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveQuery(string, time.Duration) {}

// Service はコードベースへの問い合わせのユースケースを提供する
type Service struct {
	retriever *Retriever
	layout    *project.Layout
	metrics   Metrics
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithSearchLogger は Service にロガーを設定する
func WithSearchLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSearchMetrics は計測先を設定する
func WithSearchMetrics(m Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService は新しい Service を作成する
func NewService(retriever *Retriever, layout *project.Layout, opts ...ServiceOption) *Service {
	s := &Service{
		retriever: retriever,
		layout:    layout,
		metrics:   noopMetrics{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// Retrieve は codebase（名前・パス・URL）を slug に正規化して検索する
func (s *Service) Retrieve(ctx context.Context, codebase, query string, rerank bool) (*Retrieval, error) {
	slug, err := project.Slug(codebase)
	if err != nil {
		return nil, err
	}
	return s.retriever.Retrieve(ctx, slug, query, rerank)
}

// GenerateContext は検索結果を整形したコンテキストを返す。
// エラーは返さず、失敗時は説明文を返す
func (s *Service) GenerateContext(ctx context.Context, codebase, query string, rerank bool) string {
	res, errText := s.retrieveText(ctx, codebase, query, rerank)
	if res == nil {
		return errText
	}
	return AssembleContext(res.Methods, res.Classes)
}

// Query は問い合わせツールの応答文を返す。
// 未取り込みのコードベースには取り込みを促す文と取り込み済みの一覧を返す
func (s *Service) Query(ctx context.Context, codebase, query string, rerank bool) string {
	slug, err := project.Slug(codebase)
	if err != nil {
		return fmt.Sprintf("Error processing query: %v", err)
	}

	available, err := s.layout.List()
	if err != nil {
		s.logger.Error("コードベース一覧の取得に失敗", "error", err)
		return fmt.Sprintf("Error processing query: %v", err)
	}
	if !slices.Contains(available, slug) {
		s.metrics.ObserveQuery(OutcomeNotIngested, 0)
		return NotFoundMessage(slug, available)
	}

	res, errText := s.retrieveText(ctx, codebase, query, rerank)
	if res == nil {
		return errText
	}
	if len(res.Methods) == 0 && len(res.Classes) == 0 {
		return "No relevant context found for the query."
	}
	return AssembleContext(res.Methods, res.Classes)
}

// retrieveText は検索を行い、失敗時は結果の代わりに説明文を返す
func (s *Service) retrieveText(ctx context.Context, codebase, query string, rerank bool) (*Retrieval, string) {
	start := time.Now()
	res, err := s.Retrieve(ctx, codebase, query, rerank)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, ErrNotIngested) {
			outcome = OutcomeNotIngested
		}
		s.metrics.ObserveQuery(outcome, time.Since(start))
		s.logger.Error("コンテキストの生成に失敗", "codebase", codebase, "error", err)
		return nil, fmt.Sprintf("Error generating context: %v", err)
	}
	s.metrics.ObserveQuery(OutcomeOK, time.Since(start))
	return res, ""
}

// List は取り込み済みのコードベースを返す
func (s *Service) List() ([]string, error) {
	return s.layout.List()
}

// NotFoundMessage は未取り込みのコードベースに対する応答文を返す
func NotFoundMessage(slug string, available []string) string {
	msg := "\nNo codebases are currently ingested."
	if len(available) > 0 {
		msg = "\nAvailable codebases:\n" + strings.Join(available, "\n")
	}
	return fmt.Sprintf("Codebase '%s' not found. Please ingest it first using ingest_codebase.%s", slug, msg)
}

// Invalidate は slug の検索キャッシュを破棄する
func (s *Service) Invalidate(slug string) {
	s.retriever.Invalidate(slug)
}
