package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Parser は 1 ファイルからクラス／メソッドエンティティを抽出する
type Parser interface {
	Parse(ctx context.Context, file SourceFile) (*ParsedFile, error)
}

// ParserSet は言語ごとの Parser を束ねる
type ParserSet struct {
	parsers map[Language]Parser
	workers int
	logger  *slog.Logger
}

// ParserSetOption は ParserSet のオプション設定
type ParserSetOption func(*ParserSet)

// WithParserWorkers は並列に解析するファイル数の上限を設定する
func WithParserWorkers(n int) ParserSetOption {
	return func(p *ParserSet) {
		p.workers = n
	}
}

// WithParserLogger はロガーを設定する
func WithParserLogger(logger *slog.Logger) ParserSetOption {
	return func(p *ParserSet) {
		p.logger = logger
	}
}

// NewParserSet は新しい ParserSet を作成する
func NewParserSet(opts ...ParserSetOption) *ParserSet {
	p := &ParserSet{
		parsers: make(map[Language]Parser),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Register は言語に Parser を割り当てる
func (p *ParserSet) Register(parser Parser, langs ...Language) {
	for _, lang := range langs {
		p.parsers[lang] = parser
	}
}

// Supports は言語に対応する Parser があるかを返す
func (p *ParserSet) Supports(lang Language) bool {
	_, ok := p.parsers[lang]
	return ok
}

// Parse は言語に応じた Parser で 1 ファイルを解析する
func (p *ParserSet) Parse(ctx context.Context, file SourceFile) (*ParsedFile, error) {
	parser, ok := p.parsers[file.Language]
	if !ok {
		return nil, fmt.Errorf("no parser for language %s", file.Language)
	}
	return parser.Parse(ctx, file)
}

// ParseAll は全ファイルを並列に解析し、入力順にまとめる。
// 解析に失敗したファイルは警告を出して読み飛ばす。
func (p *ParserSet) ParseAll(ctx context.Context, files []SourceFile) (*ParseResult, error) {
	parsed := make([]*ParsedFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, file := range files {
		if !p.Supports(file.Language) {
			continue
		}
		g.Go(func() error {
			res, err := p.Parse(gctx, file)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn("解析に失敗したファイルをスキップします", "path", file.Path, "error", err)
				return nil
			}
			parsed[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to parse source files: %w", err)
	}

	result := &ParseResult{}
	classSeen := make(map[string]struct{})
	methodSeen := make(map[string]struct{})
	for _, pf := range parsed {
		if pf == nil {
			continue
		}
		for _, c := range pf.Classes {
			result.Classes = append(result.Classes, c)
			if _, ok := classSeen[c.ClassName]; !ok {
				classSeen[c.ClassName] = struct{}{}
				result.ClassNames = append(result.ClassNames, c.ClassName)
			}
		}
		for _, m := range pf.Methods {
			result.Methods = append(result.Methods, m)
			if _, ok := methodSeen[m.Name]; !ok {
				methodSeen[m.Name] = struct{}{}
				result.MethodNames = append(result.MethodNames, m.Name)
			}
		}
	}

	return result, nil
}
