package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
)

// ListAction は取り込み済みコードベースの一覧を表示するコマンドのアクション
func ListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := appContextFor(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	codebases, err := appCtx.Container.Layout().List()
	if err != nil {
		return fmt.Errorf("コードベース一覧の取得に失敗: %w", err)
	}

	printCodebases(stdout(cmd), codebases)
	return nil
}

func printCodebases(w io.Writer, codebases []string) {
	if len(codebases) == 0 {
		printInfo(w, "No codebases found.")
		return
	}
	printHeader(w, "Available codebases:")
	for _, name := range codebases {
		_, _ = fmt.Fprintln(w, name)
	}
}
