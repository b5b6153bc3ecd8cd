package ask

import "strings"

// BuildChatSystemPrompt はコンテキストを埋め込んだシステムプロンプトを構築する
func BuildChatSystemPrompt(context string) string {
	var sb strings.Builder

	sb.WriteString("You are a senior engineer who knows this codebase well.\n")
	sb.WriteString("Answer the user's question using the code context below.\n\n")

	sb.WriteString("## Guidelines\n")
	sb.WriteString("- Use only the information in the context\n")
	sb.WriteString("- Name the files and symbols your answer relies on\n")
	sb.WriteString("- If the context does not contain the answer, say so instead of guessing\n\n")

	sb.WriteString("## Context\n")
	if strings.TrimSpace(context) == "" {
		sb.WriteString("(no related code was found)\n")
	} else {
		sb.WriteString(context)
		sb.WriteString("\n")
	}

	return sb.String()
}
