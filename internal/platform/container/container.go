// Package container は設定からサービス群を組み立てる。
// 各依存は初回アクセス時に生成し、結果（またはエラー）をキャッシュする。
package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/codeqa/internal/core/ask"
	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/ingestion"
	"github.com/jinford/codeqa/internal/core/project"
	"github.com/jinford/codeqa/internal/core/search"
	"github.com/jinford/codeqa/internal/infra/git"
	"github.com/jinford/codeqa/internal/infra/goast"
	"github.com/jinford/codeqa/internal/infra/ollama"
	"github.com/jinford/codeqa/internal/infra/openai"
	"github.com/jinford/codeqa/internal/infra/postgres"
	"github.com/jinford/codeqa/internal/infra/sqlite"
	"github.com/jinford/codeqa/internal/infra/tei"
	"github.com/jinford/codeqa/internal/infra/tokenizer"
	"github.com/jinford/codeqa/internal/infra/treesitter"
	"github.com/jinford/codeqa/internal/platform/config"
	"github.com/jinford/codeqa/internal/platform/database"
	"github.com/jinford/codeqa/internal/platform/metrics"
)

// Metrics は取り込みと検索の両方の計測を受け取る
type Metrics interface {
	ingestion.Metrics
	search.Metrics
}

// Container はプロセス内で共有する依存関係を保持する
type Container struct {
	cfg  *config.Config
	opts containerOptions

	mu        sync.Mutex
	layout    *project.Layout
	pool      *pgxpool.Pool
	embedder  lazy[codeindex.Embedder]
	opener    lazy[codeindex.Opener]
	encoder   lazy[ingestion.Encoder]
	completer lazy[search.Completer]
	reranker  lazy[search.Reranker]
	chat      lazy[ask.LLMClient]
	retriever lazy[*search.Retriever]
	searchSvc lazy[*search.Service]
	ingestSvc lazy[*ingestion.IngestService]
	askSvc    lazy[*ask.AskService]
}

type containerOptions struct {
	logger    *slog.Logger
	metrics   Metrics
	embedder  codeindex.Embedder
	opener    codeindex.Opener
	encoder   ingestion.Encoder
	completer search.Completer
	reranker  search.Reranker
	chat      ask.LLMClient
	cloner    ingestion.RepositoryCloner
}

// ContainerOption は Container 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerMetrics は計測先を差し替える
func WithContainerMetrics(m Metrics) ContainerOption {
	return func(opts *containerOptions) {
		opts.metrics = m
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder codeindex.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerOpener はベクトルストアを差し替える
func WithContainerOpener(opener codeindex.Opener) ContainerOption {
	return func(opts *containerOptions) {
		opts.opener = opener
	}
}

// WithContainerEncoder はトークナイザを差し替える
func WithContainerEncoder(encoder ingestion.Encoder) ContainerOption {
	return func(opts *containerOptions) {
		opts.encoder = encoder
	}
}

// WithContainerCompleter はクエリ拡張に使う LLM を差し替える
func WithContainerCompleter(completer search.Completer) ContainerOption {
	return func(opts *containerOptions) {
		opts.completer = completer
	}
}

// WithContainerReranker は再ランク付けを差し替える
func WithContainerReranker(reranker search.Reranker) ContainerOption {
	return func(opts *containerOptions) {
		opts.reranker = reranker
	}
}

// WithContainerChat は質問応答に使う LLM を差し替える
func WithContainerChat(chat ask.LLMClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.chat = chat
	}
}

// WithContainerCloner はリモートリポジトリの取得手段を差し替える
func WithContainerCloner(cloner ingestion.RepositoryCloner) ContainerOption {
	return func(opts *containerOptions) {
		opts.cloner = cloner
	}
}

// New は設定からコンテナを生成する。依存は使われるまで生成しない
func New(cfg *config.Config, opts ...ContainerOption) *Container {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = metrics.Default()
	}

	return &Container{
		cfg:    cfg,
		opts:   options,
		layout: project.NewLayout(cfg.Storage.Root),
	}
}

// Close は内部リソースを解放する
func (c *Container) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

// Logger はロガーを返す
func (c *Container) Logger() *slog.Logger {
	return c.opts.logger
}

// Layout はストレージのレイアウトを返す
func (c *Container) Layout() *project.Layout {
	return c.layout
}

// Embedder は設定されたプロバイダの Embedder を返す
func (c *Container) Embedder() (codeindex.Embedder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.embedderLocked()
}

// Opener はベクトルストアの Opener を返す
func (c *Container) Opener(ctx context.Context) (codeindex.Opener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openerLocked(ctx)
}

// Encoder はトークナイザを返す
func (c *Container) Encoder() (ingestion.Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoderLocked()
}

// Completer はクエリ拡張用の LLM を返す。HyDE 無効または API キー未設定なら nil
func (c *Container) Completer() (search.Completer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completerLocked()
}

// Reranker は再ランク付けを返す。未設定なら nil
func (c *Container) Reranker() (search.Reranker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rerankerLocked()
}

// SearchService は検索サービスを返す
func (c *Container) SearchService(ctx context.Context) (*search.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchServiceLocked(ctx)
}

// IngestService は取り込みサービスを返す
func (c *Container) IngestService(ctx context.Context) (*ingestion.IngestService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingestSvc.get(func() (*ingestion.IngestService, error) {
		opener, err := c.openerLocked(ctx)
		if err != nil {
			return nil, err
		}
		embedder, err := c.embedderLocked()
		if err != nil {
			return nil, err
		}
		encoder, err := c.encoderLocked()
		if err != nil {
			return nil, err
		}
		retriever, err := c.retrieverLocked(ctx)
		if err != nil {
			return nil, err
		}

		cloner := c.opts.cloner
		if cloner == nil {
			cloner = git.NewClient(
				git.WithSSHKey(c.cfg.Git.SSHKeyPath, c.cfg.Git.SSHPassword),
				git.WithLogger(c.opts.logger),
			)
		}

		return ingestion.NewIngestService(
			c.layout,
			opener,
			embedder,
			c.parserSet(),
			ingestion.NewTokenClipper(encoder, c.cfg.Ingestion.MaxTokens),
			ingestion.WithIngestLogger(c.opts.logger),
			ingestion.WithIngestCloner(cloner),
			ingestion.WithIngestMetrics(c.opts.metrics),
			// 取り込み後は古い検索結果を返さない
			ingestion.WithIngestHook(retriever.Invalidate),
		), nil
	})
}

// AskService は質問応答サービスを返す
func (c *Container) AskService(ctx context.Context) (*ask.AskService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.askSvc.get(func() (*ask.AskService, error) {
		searchSvc, err := c.searchServiceLocked(ctx)
		if err != nil {
			return nil, err
		}
		chat, err := c.chatLocked()
		if err != nil {
			return nil, err
		}
		return ask.NewAskService(searchSvc, chat, ask.WithAskLogger(c.opts.logger)), nil
	})
}

func (c *Container) embedderLocked() (codeindex.Embedder, error) {
	return c.embedder.get(func() (codeindex.Embedder, error) {
		if c.opts.embedder != nil {
			return c.opts.embedder, nil
		}
		switch c.cfg.Embedding.Provider {
		case "openai":
			if c.cfg.OpenAI.APIKey == "" {
				return nil, openai.ErrAPIKeyNotSet
			}
			return openai.NewEmbedder(
				c.cfg.OpenAI.APIKey,
				openai.WithEmbeddingModel(c.cfg.OpenAI.EmbeddingModel),
				openai.WithEmbeddingDimension(c.cfg.OpenAI.EmbeddingDimension),
				openai.WithEmbeddingBatchSize(c.cfg.Embedding.BatchSize),
			), nil
		case "tei":
			return tei.NewClient(c.cfg.TEI.EmbedURL, tei.WithBatchSize(c.cfg.Embedding.BatchSize)), nil
		default:
			embedder, err := ollama.NewEmbedder(ollama.Params{
				BaseURL:       c.cfg.Ollama.Host,
				Model:         c.cfg.Ollama.EmbeddingModel,
				BatchSize:     c.cfg.Embedding.BatchSize,
				MaxConcurrent: int64(c.cfg.Ollama.MaxConcurrency),
			})
			if err != nil {
				return nil, fmt.Errorf("Ollama Embedder 初期化に失敗しました: %w", err)
			}
			return embedder, nil
		}
	})
}

func (c *Container) openerLocked(ctx context.Context) (codeindex.Opener, error) {
	return c.opener.get(func() (codeindex.Opener, error) {
		if c.opts.opener != nil {
			return c.opts.opener, nil
		}
		if c.cfg.Storage.Backend != "postgres" {
			return sqlite.NewOpener(), nil
		}

		pool, err := database.New(ctx, database.ConnectionParams{
			Host:     c.cfg.Database.Host,
			Port:     c.cfg.Database.Port,
			User:     c.cfg.Database.User,
			Password: c.cfg.Database.Password,
			DBName:   c.cfg.Database.DBName,
			SSLMode:  c.cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		opener, err := postgres.NewOpener(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		c.pool = pool
		return opener, nil
	})
}

func (c *Container) encoderLocked() (ingestion.Encoder, error) {
	return c.encoder.get(func() (ingestion.Encoder, error) {
		if c.opts.encoder != nil {
			return c.opts.encoder, nil
		}
		enc, err := tokenizer.New(c.cfg.Ingestion.TokenEncoding)
		if err != nil {
			return nil, fmt.Errorf("トークナイザ初期化に失敗しました: %w", err)
		}
		return enc, nil
	})
}

// completerLocked はクエリ拡張用の LLM を返す。無効な場合は nil
func (c *Container) completerLocked() (search.Completer, error) {
	return c.completer.get(func() (search.Completer, error) {
		if c.opts.completer != nil {
			return c.opts.completer, nil
		}
		if c.cfg.Search.HyDEMode == string(search.HydeOff) || !c.cfg.ChatEnabled() {
			return nil, nil
		}
		client, err := openai.NewClientWithAPIKey(c.cfg.OpenAI.APIKey, c.cfg.OpenAI.LLMModel)
		if err != nil {
			return nil, fmt.Errorf("OpenAI LLMクライアント初期化に失敗しました: %w", err)
		}
		return client, nil
	})
}

// rerankerLocked は再ランク付けを返す。URL が未設定なら nil
func (c *Container) rerankerLocked() (search.Reranker, error) {
	return c.reranker.get(func() (search.Reranker, error) {
		if c.opts.reranker != nil {
			return c.opts.reranker, nil
		}
		if c.cfg.TEI.RerankURL == "" {
			return nil, nil
		}
		return tei.NewClient(c.cfg.TEI.RerankURL), nil
	})
}

// chatLocked は質問応答用の LLM を返す。API キーがなければ nil
func (c *Container) chatLocked() (ask.LLMClient, error) {
	return c.chat.get(func() (ask.LLMClient, error) {
		if c.opts.chat != nil {
			return c.opts.chat, nil
		}
		if !c.cfg.ChatEnabled() {
			return nil, nil
		}
		client, err := openai.NewClientWithAPIKey(c.cfg.OpenAI.APIKey, c.cfg.OpenAI.ChatModel)
		if err != nil {
			return nil, fmt.Errorf("OpenAI チャットクライアント初期化に失敗しました: %w", err)
		}
		return client, nil
	})
}

func (c *Container) retrieverLocked(ctx context.Context) (*search.Retriever, error) {
	return c.retriever.get(func() (*search.Retriever, error) {
		opener, err := c.openerLocked(ctx)
		if err != nil {
			return nil, err
		}
		embedder, err := c.embedderLocked()
		if err != nil {
			return nil, err
		}
		completer, err := c.completerLocked()
		if err != nil {
			return nil, err
		}
		reranker, err := c.rerankerLocked()
		if err != nil {
			return nil, err
		}
		mode, err := search.ParseHydeMode(c.cfg.Search.HyDEMode)
		if err != nil {
			return nil, err
		}

		opts := []search.RetrieverOption{
			search.WithLimits(c.cfg.Search.FetchLimit, c.cfg.Search.KeepLimit),
			search.WithCacheSize(c.cfg.Search.CacheSize),
			search.WithQueryExpander(search.NewQueryExpander(completer, mode, c.opts.logger)),
			search.WithRetrieverLogger(c.opts.logger),
		}
		if reranker != nil {
			opts = append(opts, search.WithReranker(reranker))
		}
		return search.NewRetriever(c.layout, opener, embedder, opts...)
	})
}

func (c *Container) searchServiceLocked(ctx context.Context) (*search.Service, error) {
	return c.searchSvc.get(func() (*search.Service, error) {
		retriever, err := c.retrieverLocked(ctx)
		if err != nil {
			return nil, err
		}
		return search.NewService(retriever, c.layout,
			search.WithSearchLogger(c.opts.logger),
			search.WithSearchMetrics(c.opts.metrics),
		), nil
	})
}

// parserSet は Go を go/ast、それ以外を tree-sitter で解析する ParserSet を返す
func (c *Container) parserSet() *ingestion.ParserSet {
	parsers := ingestion.NewParserSet(
		ingestion.WithParserWorkers(c.cfg.Ingestion.ParseWorkers),
		ingestion.WithParserLogger(c.opts.logger),
	)
	parsers.Register(goast.NewParser(), ingestion.LanguageGo)
	parsers.Register(treesitter.NewParser(), treesitter.Languages()...)
	return parsers
}

// lazy は一度だけ生成する値とそのエラーを保持する。呼び出し側で排他すること
type lazy[T any] struct {
	done bool
	val  T
	err  error
}

func (l *lazy[T]) get(build func() (T, error)) (T, error) {
	if !l.done {
		l.val, l.err = build()
		l.done = true
	}
	return l.val, l.err
}
