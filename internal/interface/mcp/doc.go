// Package mcp は codeqa を MCP (Model Context Protocol) のツールとして stdio で公開する。
//
// 提供するツール:
//   - ingest_codebase: ローカルパスまたはリポジトリ URL を取り込む
//   - codeqa: 取り込み済みコードベースから質問に関係するコードを返す
//   - list_codebases: 取り込み済みコードベースの一覧を返す
//   - ask_codebase: 関係するコードを根拠に LLM が質問へ回答する
//
// ドメイン上の失敗はツール結果のテキストとして返し、Go のエラーは返さない。
package mcp
