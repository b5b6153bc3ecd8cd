package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/jinford/codeqa/internal/core/ask"
)

// AskAction はコードベースについての質問に回答するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := appContextFor(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc, err := appCtx.Container.AskService(ctx)
	if err != nil {
		return err
	}

	res, err := svc.Ask(ctx, ask.AskParams{
		Codebase: cmd.String("codebase"),
		Question: cmd.String("question"),
		Rerank:   cmd.Bool("rerank"),
	})
	if err != nil {
		return err
	}

	printAnswer(stdout(cmd), res)
	return nil
}

func printAnswer(w io.Writer, res *ask.AskResult) {
	_, _ = fmt.Fprintln(w, res.Answer)
	if len(res.Sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	printHeader(w, "Sources:")
	for _, src := range res.Sources {
		_, _ = fmt.Fprintf(w, "  - %s (%s %s)\n", src.FilePath, src.Kind, src.Name)
	}
}
