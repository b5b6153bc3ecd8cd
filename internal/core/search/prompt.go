package search

import "fmt"

// HydeSystemPrompt は 1 段目のクエリ書き換えに使うシステムプロンプト
const HydeSystemPrompt = `You are an expert software engineer. Given a question about a codebase, write the code or
technical explanation that would most likely answer it. Use the identifiers, function names,
class names and terminology a real implementation would contain. Do not explain your reasoning.
Respond only with the predicted code or explanation.`

// hydeV2SystemPromptFormat は 2 段目の書き換えに使うシステムプロンプト。
// 元のクエリと 1 段目で得た暫定コンテキストを埋め込む
const hydeV2SystemPromptFormat = `You are an expert software engineer. Refine a predicted answer so that it matches the
vocabulary of the actual codebase.

Original query:
%s

Code retrieved from the codebase for a first draft answer:
%s

Rewrite the predicted answer using the real identifiers, file names and structure seen in the
retrieved code. Respond only with the refined code or explanation.`

// HydeUserPrompt は 1 段目のユーザーメッセージを返す
func HydeUserPrompt(query string) string {
	return "Help predict the answer to the query: " + query
}

// HydeV2SystemPrompt は 2 段目のシステムプロンプトを返す
func HydeV2SystemPrompt(query, tempContext string) string {
	return fmt.Sprintf(hydeV2SystemPromptFormat, query, tempContext)
}

// HydeV2UserPrompt は 2 段目のユーザーメッセージを返す
func HydeV2UserPrompt(hydeQuery string) string {
	return "Predict the answer to the query: " + hydeQuery
}
