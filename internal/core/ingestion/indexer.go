package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
)

// IndexStats はテーブル投入の結果
type IndexStats struct {
	MethodRows  int
	ClassRows   int
	DroppedRows int
}

// VectorIndexer はプロジェクトのメソッド／クラステーブルを作り直す。
// 同じ slug に対する同時実行は想定しない。
type VectorIndexer struct {
	embedder codeindex.Embedder
	logger   *slog.Logger
}

// NewVectorIndexer は新しい VectorIndexer を作成する
func NewVectorIndexer(embedder codeindex.Embedder, logger *slog.Logger) *VectorIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorIndexer{embedder: embedder, logger: logger}
}

// Index はメソッドテーブル、クラステーブルの順に上書き作成する。
// どちらかで失敗した場合は両方のテーブルを削除してからエラーを返す。
func (ix *VectorIndexer) Index(ctx context.Context, store codeindex.Store, slug string, corpus *Corpus) (*IndexStats, error) {
	methodTable := project.MethodTable(slug)
	classTable := project.ClassTable(slug)

	stats, err := ix.index(ctx, store, methodTable, classTable, corpus)
	if err != nil {
		ix.logger.Error("テーブル作成に失敗したため両テーブルを削除します", "slug", slug, "error", err)
		if dropErr := ix.dropBoth(context.WithoutCancel(ctx), store, methodTable, classTable); dropErr != nil {
			return nil, errors.Join(err, dropErr)
		}
		return nil, err
	}
	return stats, nil
}

func (ix *VectorIndexer) index(ctx context.Context, store codeindex.Store, methodTable, classTable string, corpus *Corpus) (*IndexStats, error) {
	stats := &IndexStats{}

	methodFields := make([]map[string]string, len(corpus.Methods))
	for i, r := range corpus.Methods {
		methodFields[i] = r.Fields()
	}
	n, dropped, err := ix.fillTable(ctx, store, methodTable, codeindex.MethodSchema, methodFields)
	if err != nil {
		return nil, err
	}
	stats.MethodRows = n
	stats.DroppedRows += dropped

	classFields := make([]map[string]string, len(corpus.Classes))
	for i, r := range corpus.Classes {
		classFields[i] = r.Fields()
	}
	n, dropped, err = ix.fillTable(ctx, store, classTable, codeindex.ClassSchema, classFields)
	if err != nil {
		return nil, err
	}
	stats.ClassRows = n
	stats.DroppedRows += dropped

	return stats, nil
}

// fillTable はテーブルを上書き作成し、埋め込みを計算した行を投入する
func (ix *VectorIndexer) fillTable(ctx context.Context, store codeindex.Store, table string, schema codeindex.Schema, rows []map[string]string) (int, int, error) {
	if err := store.CreateTable(ctx, table, schema); err != nil {
		return 0, 0, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	batchSize := ix.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	dim := 0
	added, dropped := 0, 0
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f[schema.SourceField]
		}
		vectors, err := ix.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to embed rows for %s: %w", table, err)
		}

		good := make([]codeindex.Row, 0, len(batch))
		for i, f := range batch {
			var vec []float32
			if i < len(vectors) {
				vec = vectors[i]
			}
			if !validVector(vec, dim) {
				dropped++
				ix.logger.Warn("不正な埋め込みベクトルの行を除外します",
					"table", table,
					"filePath", f["file_path"],
					"dim", len(vec),
				)
				continue
			}
			if dim == 0 {
				dim = len(vec)
			}
			good = append(good, codeindex.Row{Fields: f, Embedding: vec})
		}

		if len(good) == 0 {
			continue
		}
		if err := store.AddRows(ctx, table, schema, good); err != nil {
			return 0, 0, fmt.Errorf("failed to add rows to %s: %w", table, err)
		}
		added += len(good)
	}

	ix.logger.Info("テーブルを作成しました", "table", table, "rows", added, "dropped", dropped)
	return added, dropped, nil
}

func (ix *VectorIndexer) dropBoth(ctx context.Context, store codeindex.Store, tables ...string) error {
	existing, err := store.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		present[name] = struct{}{}
	}

	var errs []error
	for _, table := range tables {
		if _, ok := present[table]; !ok {
			continue
		}
		if err := store.DropTable(ctx, table); err != nil {
			errs = append(errs, fmt.Errorf("failed to drop table %s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}

// validVector は空でなく、次元が揃い、NaN/Inf を含まないベクトルかを判定する
func validVector(vec []float32, dim int) bool {
	if len(vec) == 0 {
		return false
	}
	if dim > 0 && len(vec) != dim {
		return false
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
