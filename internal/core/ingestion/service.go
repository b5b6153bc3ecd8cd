package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
)

// ErrClonerNotConfigured はリモート入力を受け取ったがクローン手段がない場合のエラー
var ErrClonerNotConfigured = errors.New("repository cloner is not configured")

// RepositoryCloner はリモートリポジトリをローカルディレクトリに取得する
type RepositoryCloner interface {
	Clone(ctx context.Context, url, dest string) error
}

// IngestService はコードベース取り込みのユースケースを提供する
type IngestService struct {
	layout   *project.Layout
	opener   codeindex.Opener
	scanner  *Scanner
	parsers  *ParserSet
	resolver *ReferenceResolver
	builder  *CorpusBuilder
	indexer  *VectorIndexer
	cloner   RepositoryCloner
	metrics  Metrics
	hooks    []func(slug string)
	logger   *slog.Logger
}

type ingestServiceOptions struct {
	cloner  RepositoryCloner
	metrics Metrics
	hooks   []func(slug string)
	logger  *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithIngestCloner はリモートリポジトリのクローン手段を設定する
func WithIngestCloner(cloner RepositoryCloner) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.cloner = cloner
	}
}

// WithIngestMetrics は計測先を設定する
func WithIngestMetrics(m Metrics) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.metrics = m
	}
}

// WithIngestHook は取り込みの終了時に成否によらず呼ばれる関数を追加する（検索キャッシュの破棄など）
func WithIngestHook(hook func(slug string)) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.hooks = append(o.hooks, hook)
	}
}

// NewIngestService は新しい IngestService を作成する
func NewIngestService(
	layout *project.Layout,
	opener codeindex.Opener,
	embedder codeindex.Embedder,
	parsers *ParserSet,
	clipper *TokenClipper,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		metrics: noopMetrics{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = noopMetrics{}
	}

	return &IngestService{
		layout:   layout,
		opener:   opener,
		scanner:  NewScanner(WithScannerLogger(options.logger)),
		parsers:  parsers,
		resolver: NewReferenceResolver(),
		builder:  NewCorpusBuilder(clipper),
		indexer:  NewVectorIndexer(embedder, options.logger),
		cloner:   options.cloner,
		metrics:  options.metrics,
		hooks:    options.hooks,
		logger:   options.logger,
	}
}

// Ingest はローカルパスまたはリモート URL のコードベースを取り込む。
// リモートの場合は一時ディレクトリにクローンし、終了時に必ず削除する。
func (s *IngestService) Ingest(ctx context.Context, input string) (result *Result, err error) {
	startTime := time.Now()
	runID := uuid.New()
	logger := s.logger.With("runID", runID.String())

	defer func() {
		if err != nil {
			s.metrics.IncFailure()
		}
	}()

	slug, err := project.Slug(input)
	if err != nil {
		return nil, err
	}
	logger = logger.With("slug", slug)
	logger.Info("取り込みを開始", "input", input)

	// 失敗時もテーブルや成果物が作り直されている可能性があるため、結果によらずフックを呼ぶ
	defer func() {
		for _, hook := range s.hooks {
			hook(slug)
		}
	}()

	root := input
	if project.IsRemote(input) {
		if s.cloner == nil {
			return nil, ErrClonerNotConfigured
		}
		tmpDir, err := os.MkdirTemp("", "codeqa-clone-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer func() {
			if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
				logger.Warn("一時ディレクトリの削除に失敗", "dir", tmpDir, "error", rmErr)
			}
		}()

		cloneStart := time.Now()
		if err := s.cloner.Clone(ctx, input, tmpDir); err != nil {
			return nil, fmt.Errorf("failed to clone %s: %w", input, err)
		}
		s.metrics.ObserveStage("clone", time.Since(cloneStart))
		root = tmpDir
	}

	// scan
	stageStart := time.Now()
	scanned, err := s.scanner.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStage("scan", time.Since(stageStart))
	s.metrics.AddScanned(len(scanned.SourceFiles), len(scanned.SpecialFiles))

	// parse
	stageStart = time.Now()
	parsed, err := s.parsers.ParseAll(ctx, scanned.SourceFiles)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStage("parse", time.Since(stageStart))
	s.metrics.AddEntities(len(parsed.Classes), len(parsed.Methods))
	logger.Info("解析完了", "classes", len(parsed.Classes), "methods", len(parsed.Methods))

	// resolve
	stageStart = time.Now()
	refs := s.resolver.Resolve(scanned.SourceFiles, parsed)
	classes, methods := s.builder.Merge(parsed, refs)
	s.metrics.ObserveStage("resolve", time.Since(stageStart))

	// build
	stageStart = time.Now()
	dir, err := s.layout.Reset(slug)
	if err != nil {
		return nil, err
	}
	if err := WriteCSV(dir, classes, methods); err != nil {
		return nil, err
	}
	corpus := s.builder.Build(classes, methods, scanned.SpecialFiles)
	s.metrics.ObserveStage("build", time.Since(stageStart))

	// index
	stageStart = time.Now()
	store, err := s.opener.Open(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("ベクトルストアのクローズに失敗", "error", closeErr)
		}
	}()

	stats, err := s.indexer.Index(ctx, store, slug, corpus)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", slug, err)
	}
	s.metrics.ObserveStage("index", time.Since(stageStart))
	s.metrics.AddDroppedRows(stats.DroppedRows)

	result = &Result{
		Slug:         slug,
		ArtifactsDir: dir,
		Classes:      len(classes),
		Methods:      len(methods),
		SpecialFiles: len(scanned.SpecialFiles),
		DroppedRows:  stats.DroppedRows,
	}

	logger.Info("取り込みが完了",
		"classes", result.Classes,
		"methods", result.Methods,
		"specialFiles", result.SpecialFiles,
		"droppedRows", result.DroppedRows,
		"duration", time.Since(startTime),
	)
	return result, nil
}
