package search

import (
	"context"
	"fmt"
	"log/slog"
)

// Completer は LLM のチャット補完を行う
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// HydeMode はクエリ書き換えの方式
type HydeMode string

const (
	HydeOff     HydeMode = "off"
	HydeSingle  HydeMode = "single"
	HydeTwoPass HydeMode = "two-pass"
)

// ParseHydeMode は文字列から HydeMode を返す。空文字は HydeOff
func ParseHydeMode(s string) (HydeMode, error) {
	switch HydeMode(s) {
	case "", HydeOff:
		return HydeOff, nil
	case HydeSingle:
		return HydeSingle, nil
	case HydeTwoPass:
		return HydeTwoPass, nil
	default:
		return "", fmt.Errorf("unknown hyde mode: %s", s)
	}
}

// QueryExpander は仮想回答（HyDE）でクエリを書き換える。
// 補完サービスが未設定または失敗した場合は元のクエリをそのまま返す
type QueryExpander struct {
	completer Completer
	mode      HydeMode
	logger    *slog.Logger
}

// NewQueryExpander は新しい QueryExpander を作成する。completer は nil でもよい
func NewQueryExpander(completer Completer, mode HydeMode, logger *slog.Logger) *QueryExpander {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = HydeOff
	}
	return &QueryExpander{completer: completer, mode: mode, logger: logger}
}

// Mode は書き換え方式を返す
func (e *QueryExpander) Mode() HydeMode {
	if e == nil {
		return HydeOff
	}
	return e.mode
}

func (e *QueryExpander) enabled() bool {
	return e != nil && e.completer != nil && e.mode != HydeOff
}

// Expand は 1 段目の書き換えを行う
func (e *QueryExpander) Expand(ctx context.Context, query string) string {
	if !e.enabled() {
		return query
	}
	out, err := e.completer.Complete(ctx, HydeSystemPrompt, HydeUserPrompt(query))
	if err != nil || out == "" {
		e.logger.Warn("クエリの書き換えに失敗したため元のクエリを使います", "error", err)
		return query
	}
	e.logger.Debug("クエリを書き換えました", "query", query, "hydeQuery", out)
	return out
}

// Refine は暫定コンテキストを使って 2 段目の書き換えを行う。two-pass 以外では hydeQuery を返す
func (e *QueryExpander) Refine(ctx context.Context, query, tempContext, hydeQuery string) string {
	if !e.enabled() || e.mode != HydeTwoPass {
		return hydeQuery
	}
	out, err := e.completer.Complete(ctx, HydeV2SystemPrompt(query, tempContext), HydeV2UserPrompt(hydeQuery))
	if err != nil || out == "" {
		e.logger.Warn("2 段目のクエリ書き換えに失敗しました", "error", err)
		return hydeQuery
	}
	return out
}
