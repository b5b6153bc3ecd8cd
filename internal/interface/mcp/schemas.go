package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func ingestCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_codebase",
		Description: "Add a new codebase to the vector database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"dir": map[string]any{
					"type":        "string",
					"description": "Local path to codebase or git URL of a repository",
				},
			},
			Required: []string{"dir"},
		},
	}
}

func codeqaTool() mcp.Tool {
	return mcp.Tool{
		Name:        "codeqa",
		Description: "Talk with codebase: returns the code most relevant to the query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"codebase": map[string]any{
					"type":        "string",
					"description": "The codebase to query. Can be a name, git URL, or local path",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
				"rerank": map[string]any{
					"type":        "boolean",
					"description": "Rerank the results before returning them",
					"default":     true,
				},
			},
			Required: []string{"codebase", "query"},
		},
	}
}

func listCodebasesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_codebases",
		Description: "List all codebases",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

func askCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_codebase",
		Description: "Answer a question about a codebase using its most relevant code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"codebase": map[string]any{
					"type":        "string",
					"description": "The codebase to ask about. Can be a name, git URL, or local path",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "The question to answer",
				},
				"rerank": map[string]any{
					"type":        "boolean",
					"description": "Rerank the retrieved code before answering",
					"default":     true,
				},
			},
			Required: []string{"codebase", "question"},
		},
	}
}
