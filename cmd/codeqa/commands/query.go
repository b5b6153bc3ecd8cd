package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// QueryAction は取り込み済みコードベースを検索するコマンドのアクション
func QueryAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := appContextFor(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc, err := appCtx.Container.SearchService(ctx)
	if err != nil {
		return err
	}

	out := svc.Query(ctx, cmd.String("codebase"), cmd.String("query"), cmd.Bool("rerank"))
	_, err = fmt.Fprintln(stdout(cmd), out)
	return err
}
