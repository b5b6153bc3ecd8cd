package commands

import (
	"context"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/codeqa/internal/interface/mcp"
	"github.com/jinford/codeqa/internal/platform/metrics"
)

// ServeAction は MCP サーバーを stdio で起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := appContextFor(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	ingestSvc, err := appCtx.Container.IngestService(ctx)
	if err != nil {
		return err
	}
	searchSvc, err := appCtx.Container.SearchService(ctx)
	if err != nil {
		return err
	}

	opts := []mcp.Option{mcp.WithLogger(appCtx.Logger)}
	if appCtx.Config.ChatEnabled() {
		askSvc, err := appCtx.Container.AskService(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, mcp.WithAsker(askSvc))
	}
	server := mcp.NewServer(ingestSvc, searchSvc, opts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if addr := cmd.String("metrics-addr"); addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr, appCtx.Logger)
		})
	}
	g.Go(func() error {
		// 標準入力が閉じたらメトリクスサーバーも止める
		defer cancel()
		return server.Serve(gctx)
	})
	return g.Wait()
}
