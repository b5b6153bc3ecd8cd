package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jinford/codeqa/internal/core/ask"
	"github.com/jinford/codeqa/internal/core/ingestion"
)

const (
	// ServerName は MCP サーバー名
	ServerName = "codeqa"
	// ServerVersion はサーバーのバージョン
	ServerVersion = "0.1.0"
)

// Ingester はコードベースを取り込む
type Ingester interface {
	Ingest(ctx context.Context, input string) (*ingestion.Result, error)
}

// Searcher は取り込み済みコードベースを検索する
type Searcher interface {
	Query(ctx context.Context, codebase, query string, rerank bool) string
	List() ([]string, error)
}

// Asker は質問に回答する
type Asker interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
}

// Server は MCP サーバーとアプリケーションの依存をまとめる
type Server struct {
	mcp      *server.MCPServer
	ingester Ingester
	searcher Searcher
	asker    Asker
	logger   *slog.Logger
}

// Option は Server のオプション設定
type Option func(*Server)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAsker は ask_codebase ツールを有効にする
func WithAsker(asker Asker) Option {
	return func(s *Server) {
		s.asker = asker
	}
}

// NewServer は新しい Server を作成し、ツールを登録する
func NewServer(ingester Ingester, searcher Searcher, opts ...Option) *Server {
	s := &Server{
		ingester: ingester,
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Serve は stdio で MCP サーバーを起動し、ctx が終了するか入力が閉じるまでブロックする
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen は任意の入出力で MCP サーバーを動かす
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("MCPサーバーを起動しました", "name", ServerName, "version", ServerVersion)
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(ingestCodebaseTool(), s.handleIngestCodebase)
	s.mcp.AddTool(codeqaTool(), s.handleCodeQA)
	s.mcp.AddTool(listCodebasesTool(), s.handleListCodebases)
	if s.asker != nil {
		s.mcp.AddTool(askCodebaseTool(), s.handleAskCodebase)
	}
}
