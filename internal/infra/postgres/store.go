package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/platform/database"
)

// ErrTableNotFound は存在しないテーブルを指定した場合のエラー
var ErrTableNotFound = errors.New("table not found")

const searchColumn = "search_vector"

// Opener は共有の接続プール上のストアを返す codeindex.Opener 実装。
// テーブルはデータベース全体で共有されるため成果物ディレクトリは使わない。
type Opener struct {
	store *Store
}

// NewOpener は pgvector 拡張を有効化して Opener を作成する
func NewOpener(ctx context.Context, pool *pgxpool.Pool) (*Opener, error) {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	return &Opener{store: &Store{pool: pool}}, nil
}

// Open はストアを返す
func (o *Opener) Open(ctx context.Context, artifactsDir string) (codeindex.Store, error) {
	return o.store, nil
}

// Store は pgx と pgvector による codeindex.Store 実装
type Store struct {
	pool *pgxpool.Pool
}

// インターフェース実装の確認
var (
	_ codeindex.Opener = (*Opener)(nil)
	_ codeindex.Store  = (*Store)(nil)
)

// Close は何もしない。プールの所有者が閉じる
func (s *Store) Close() error {
	return nil
}

// CreateTable は既存テーブルを破棄して作り直す。
// ベクトル列は次元を固定せず、全文検索用の tsvector を生成列として持つ
func (s *Store) CreateTable(ctx context.Context, name string, schema codeindex.Schema) error {
	cols := make([]string, 0, len(schema.Columns)+3)
	cols = append(cols, "id BIGSERIAL PRIMARY KEY")
	for _, c := range schema.Columns {
		cols = append(cols, pgx.Identifier{c}.Sanitize()+" TEXT NOT NULL")
	}
	cols = append(cols,
		"embedding vector NOT NULL",
		fmt.Sprintf("%s tsvector GENERATED ALWAYS AS (to_tsvector('simple', %s)) STORED",
			searchColumn, pgx.Identifier{schema.SourceField}.Sanitize()),
	)

	table := pgx.Identifier{name}.Sanitize()
	index := pgx.Identifier{name + "_search_idx"}.Sanitize()

	return database.Transact(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockTable(ctx, tx, name); err != nil {
			return err
		}
		stmts := []string{
			"DROP TABLE IF EXISTS " + table,
			"CREATE TABLE " + table + " (" + strings.Join(cols, ", ") + ")",
			"CREATE INDEX " + index + " ON " + table + " USING GIN (" + searchColumn + ")",
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table %s: %w", name, err)
			}
		}
		return nil
	})
}

// AddRows は行とベクトルをバッチで挿入する
func (s *Store) AddRows(ctx context.Context, name string, schema codeindex.Schema, rows []codeindex.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, name); err != nil {
		return err
	}

	quoted := make([]string, len(schema.Columns))
	placeholders := make([]string, len(schema.Columns)+1)
	for i, c := range schema.Columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	placeholders[len(schema.Columns)] = fmt.Sprintf("$%d", len(schema.Columns)+1)

	query := "INSERT INTO " + pgx.Identifier{name}.Sanitize() +
		" (" + strings.Join(quoted, ", ") + ", embedding) VALUES (" + strings.Join(placeholders, ", ") + ")"

	return database.Transact(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			args := make([]any, 0, len(schema.Columns)+1)
			for _, c := range schema.Columns {
				args = append(args, fieldValue(row.Fields, c))
			}
			args = append(args, pgvector.NewVector(row.Embedding))
			batch.Queue(query, args...)
		}

		results := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert row into %s: %w", name, err)
			}
		}
		return results.Close()
	})
}

// DropTable はテーブルを削除する
func (s *Store) DropTable(ctx context.Context, name string) error {
	return database.Transact(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockTable(ctx, tx, name); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", name, err)
		}
		return nil
	})
}

// TableNames は現在のスキーマにあるメソッド／クラステーブル名を返す
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = current_schema()
		  AND (tablename LIKE '%\_method' OR tablename LIKE '%\_class')
		ORDER BY tablename`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan table names: %w", err)
	}
	return names, nil
}

// HybridSearch は pgvector のコサイン距離と tsvector の一致を RRF で融合する
func (s *Store) HybridSearch(ctx context.Context, req codeindex.SearchRequest) ([]codeindex.Row, error) {
	if req.Limit <= 0 {
		return nil, nil
	}
	if err := s.ensureTable(ctx, req.Table); err != nil {
		return nil, err
	}

	table := pgx.Identifier{req.Table}.Sanitize()
	candidates := codeindex.CandidateLimit(req.Limit)

	var vectorIDs []int64
	if len(req.Vector) > 0 {
		// 次元の異なる行は比較できないため除外する
		rows, err := s.pool.Query(ctx,
			"SELECT id FROM "+table+" WHERE vector_dims(embedding) = $2 ORDER BY embedding <=> $1 LIMIT $3",
			pgvector.NewVector(req.Vector), len(req.Vector), candidates,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to execute vector search: %w", err)
		}
		vectorIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector results: %w", err)
		}
	}

	var textIDs []int64
	if tsq := tsQuery(req.Query); tsq != "" {
		rows, err := s.pool.Query(ctx,
			"SELECT id FROM "+table+" WHERE "+searchColumn+" @@ to_tsquery('simple', $1)"+
				" ORDER BY ts_rank("+searchColumn+", to_tsquery('simple', $1)) DESC, id LIMIT $2",
			tsq, candidates,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to execute text search: %w", err)
		}
		textIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return nil, fmt.Errorf("failed to scan text results: %w", err)
		}
	}

	fused := codeindex.FuseRRF(vectorIDs, textIDs)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	return s.loadRows(ctx, req.Table, req.Schema, fused)
}

func (s *Store) ensureTable(ctx context.Context, name string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1)", name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return nil
}

func (s *Store) loadRows(ctx context.Context, table string, schema codeindex.Schema, ids []int64) ([]codeindex.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, "+strings.Join(quoted, ", ")+" FROM "+pgx.Identifier{table}.Sanitize()+" WHERE id = ANY($1)",
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]codeindex.Row, len(ids))
	for rows.Next() {
		var id int64
		values := make([]string, len(schema.Columns))
		dest := make([]any, 0, len(values)+1)
		dest = append(dest, &id)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		fields := make(map[string]string, len(values))
		for i, c := range schema.Columns {
			fields[c] = values[i]
		}
		byID[id] = codeindex.Row{Fields: fields}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]codeindex.Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// tsQuery はクエリの語を OR で結んだ tsquery を返す。語がなければ空文字
func tsQuery(query string) string {
	terms := codeindex.QueryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = "'" + strings.ReplaceAll(t, "'", "''") + "'"
	}
	return strings.Join(quoted, " | ")
}

func fieldValue(fields map[string]string, col string) string {
	if v := fields[col]; v != "" {
		return v
	}
	return codeindex.Sentinel
}
