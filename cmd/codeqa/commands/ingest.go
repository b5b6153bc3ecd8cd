package commands

import (
	"context"
	"errors"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// IngestAction はコードベースを取り込むコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	input := cmd.Args().First()
	if input == "" {
		return errors.New("取り込むパスまたは URL を指定してください")
	}

	appCtx, err := appContextFor(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc, err := appCtx.Container.IngestService(ctx)
	if err != nil {
		return err
	}

	res, err := svc.Ingest(ctx, input)
	if err != nil {
		appCtx.Logger.Error("取り込みに失敗しました", "input", input, "error", err)
		return err
	}

	printIngestResult(stdout(cmd), res)
	return nil
}

func printIngestResult(w io.Writer, res *ingestion.Result) {
	printSuccess(w, "Added codebase: %s", res.ArtifactsDir)
	printKeyValue(w, "slug", res.Slug)
	printKeyValue(w, "classes", res.Classes)
	printKeyValue(w, "methods", res.Methods)
	printKeyValue(w, "special files", res.SpecialFiles)
	if res.DroppedRows > 0 {
		printKeyValue(w, "dropped rows", res.DroppedRows)
	}
}
