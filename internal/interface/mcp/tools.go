package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jinford/codeqa/internal/core/ask"
	"github.com/jinford/codeqa/internal/core/search"
)

func (s *Server) handleIngestCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := getString(request.GetArguments(), "dir")
	if dir == "" {
		return mcp.NewToolResultError("dir parameter is required"), nil
	}

	res, err := s.ingester.Ingest(ctx, dir)
	if err != nil {
		s.logger.Error("取り込みに失敗", "dir", dir, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error ingesting codebase: %v", err)), nil
	}
	return mcp.NewToolResultText("Added codebase: " + res.ArtifactsDir), nil
}

func (s *Server) handleCodeQA(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	codebase := getString(args, "codebase")
	query := getString(args, "query")
	if codebase == "" || query == "" {
		return mcp.NewToolResultError("codebase and query parameters are required"), nil
	}

	return mcp.NewToolResultText(s.searcher.Query(ctx, codebase, query, getBoolDefault(args, "rerank", true))), nil
}

func (s *Server) handleListCodebases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := s.searcher.List()
	if err != nil {
		s.logger.Error("コードベース一覧の取得に失敗", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error listing codebases: %v", err)), nil
	}
	if len(folders) == 0 {
		return mcp.NewToolResultText("No codebases found."), nil
	}
	return mcp.NewToolResultText("Available codebases:\n" + strings.Join(folders, "\n")), nil
}

func (s *Server) handleAskCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	params := ask.AskParams{
		Codebase: getString(args, "codebase"),
		Question: getString(args, "question"),
		Rerank:   getBoolDefault(args, "rerank", true),
	}
	if params.Codebase == "" || params.Question == "" {
		return mcp.NewToolResultError("codebase and question parameters are required"), nil
	}

	res, err := s.asker.Ask(ctx, params)
	if err != nil {
		var notIngested *search.NotIngestedError
		if errors.As(err, &notIngested) {
			available, _ := s.searcher.List()
			return mcp.NewToolResultText(search.NotFoundMessage(notIngested.Slug, available)), nil
		}
		s.logger.Error("質問応答に失敗", "codebase", params.Codebase, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error answering question: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAnswer(res)), nil
}

// formatAnswer は回答と参照元を 1 つのテキストにまとめる
func formatAnswer(res *ask.AskResult) string {
	var sb strings.Builder
	sb.WriteString(res.Answer)
	if len(res.Sources) > 0 {
		sb.WriteString("\n\nSources:")
		for _, src := range res.Sources {
			fmt.Fprintf(&sb, "\n- %s (%s %s)", src.FilePath, src.Kind, src.Name)
		}
	}
	return sb.String()
}

func getString(args map[string]any, key string) string {
	if val, ok := args[key].(string); ok {
		return strings.TrimSpace(val)
	}
	return ""
}

func getBoolDefault(args map[string]any, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}
