package commands

import (
	"context"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

// NewApp は codeqa のコマンドツリーを返す
func NewApp() *cli.Command {
	return &cli.Command{
		Name:  "codeqa",
		Usage: "コードベースを取り込み、質問に関係するコードを検索する",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "環境変数ファイルパス",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "色付き出力を無効化",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("no-color") {
				color.NoColor = true
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "ローカルパスまたはリポジトリ URL のコードベースを取り込む",
				ArgsUsage: "<path|url>",
				Action:    IngestAction,
			},
			{
				Name:  "query",
				Usage: "取り込み済みコードベースから関係するコードを検索",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "codebase",
						Usage:    "コードベースの名前・パス・URL",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "rerank",
						Usage: "検索結果を再ランク付けする",
						Value: true,
					},
				},
				Action: QueryAction,
			},
			{
				Name:  "ask",
				Usage: "コードベースについての質問に LLM で回答",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "codebase",
						Usage:    "コードベースの名前・パス・URL",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "rerank",
						Usage: "検索結果を再ランク付けする",
						Value: true,
					},
				},
				Action: AskAction,
			},
			{
				Name:   "list",
				Usage:  "取り込み済みコードベースの一覧を表示",
				Action: ListAction,
			},
			{
				Name:  "serve",
				Usage: "MCP サーバーを stdio で起動",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Prometheus メトリクスの公開アドレス（例: :9090）。省略時は公開しない",
					},
				},
				Action: ServeAction,
			},
		},
	}
}
