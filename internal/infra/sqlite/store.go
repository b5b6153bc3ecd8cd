// Package sqlite はプロジェクトごとの埋め込み SQLite ファイルによるベクトルストアを提供する。
//
// 各テーブルは行データと float32 のベクトル（リトルエンディアンの BLOB）を持ち、
// 検索対象列は FTS5 の仮想テーブル {table}_fts に複製する。
// ハイブリッド検索は Go 側で計算したコサイン類似度と FTS5 の bm25 順位を RRF で融合する。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jinford/codeqa/internal/core/codeindex"
)

const (
	// DriverName は modernc.org/sqlite のドライバ名
	DriverName = "sqlite"
	// FileName は成果物ディレクトリ内のデータベースファイル名
	FileName = "index.db"

	registryTable = "codeqa_tables"
	ftsSuffix     = "_fts"
)

// ErrTableNotFound は存在しないテーブルを指定した場合のエラー
var ErrTableNotFound = errors.New("table not found")

// Opener は成果物ディレクトリの index.db を開く codeindex.Opener 実装
type Opener struct{}

// NewOpener は新しい Opener を作成する
func NewOpener() *Opener {
	return &Opener{}
}

// Open は成果物ディレクトリのストアを開く。ファイルがなければ作成する
func (o *Opener) Open(ctx context.Context, artifactsDir string) (codeindex.Store, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return NewStore(ctx, filepath.Join(artifactsDir, FileName))
}

// Store は SQLite による codeindex.Store 実装
type Store struct {
	db *sql.DB
}

// インターフェース実装の確認
var (
	_ codeindex.Opener = (*Opener)(nil)
	_ codeindex.Store  = (*Store)(nil)
)

// NewStore は指定パスのデータベースを開き、テーブル台帳を用意する
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 書き込みは単一コネクションに寄せる
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+registryTable+` (
		name TEXT PRIMARY KEY,
		source_field TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table registry: %w", err)
	}

	return &Store{db: db}, nil
}

// Close はデータベースを閉じる
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTable は既存のテーブルを破棄して空のテーブルを作る
func (s *Store) CreateTable(ctx context.Context, name string, schema codeindex.Schema) error {
	cols := make([]string, 0, len(schema.Columns)+2)
	cols = append(cols, "id INTEGER PRIMARY KEY")
	for _, c := range schema.Columns {
		cols = append(cols, quote(c)+" TEXT NOT NULL")
	}
	cols = append(cols, "embedding BLOB NOT NULL")

	return s.transact(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			"DROP TABLE IF EXISTS " + quote(name),
			"DROP TABLE IF EXISTS " + quote(name+ftsSuffix),
			"CREATE TABLE " + quote(name) + " (" + strings.Join(cols, ", ") + ")",
			"CREATE VIRTUAL TABLE " + quote(name+ftsSuffix) + " USING fts5(content)",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO `+registryTable+` (name, source_field) VALUES (?, ?)`,
			name, schema.SourceField,
		); err != nil {
			return fmt.Errorf("failed to register table %s: %w", name, err)
		}
		return nil
	})
}

// AddRows は行とベクトルを追加し、検索対象列を全文検索インデックスにも登録する
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
		quoted[i] = quote(c)
		placeholders[i] = "?"
	}
	placeholders[len(schema.Columns)] = "?"

	insertRow := "INSERT INTO " + quote(name) + " (" + strings.Join(quoted, ", ") + ", embedding) VALUES (" +
		strings.Join(placeholders, ", ") + ")"
	insertFTS := "INSERT INTO " + quote(name+ftsSuffix) + " (rowid, content) VALUES (?, ?)"

	return s.transact(ctx, func(tx *sql.Tx) error {
		rowStmt, err := tx.PrepareContext(ctx, insertRow)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = rowStmt.Close() }()

		ftsStmt, err := tx.PrepareContext(ctx, insertFTS)
		if err != nil {
			return fmt.Errorf("failed to prepare fts insert: %w", err)
		}
		defer func() { _ = ftsStmt.Close() }()

		for _, row := range rows {
			args := make([]any, 0, len(schema.Columns)+1)
			for _, c := range schema.Columns {
				args = append(args, fieldValue(row.Fields, c))
			}
			args = append(args, serializeVector(row.Embedding))

			res, err := rowStmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("failed to insert row into %s: %w", name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get row id: %w", err)
			}
			if _, err := ftsStmt.ExecContext(ctx, id, fieldValue(row.Fields, schema.SourceField)); err != nil {
				return fmt.Errorf("failed to index row of %s: %w", name, err)
			}
		}
		return nil
	})
}

// DropTable はテーブルと全文検索インデックスを削除する
func (s *Store) DropTable(ctx context.Context, name string) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DROP TABLE IF EXISTS " + quote(name),
			"DROP TABLE IF EXISTS " + quote(name+ftsSuffix),
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+registryTable+` WHERE name = ?`, name); err != nil {
			return fmt.Errorf("failed to unregister table %s: %w", name, err)
		}
		return nil
	})
}

// TableNames は登録済みのテーブル名を名前順で返す
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM `+registryTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HybridSearch はベクトル近傍と全文検索の結果を RRF で融合して上位 Limit 件を返す
func (s *Store) HybridSearch(ctx context.Context, req codeindex.SearchRequest) ([]codeindex.Row, error) {
	if req.Limit <= 0 {
		return nil, nil
	}
	if err := s.ensureTable(ctx, req.Table); err != nil {
		return nil, err
	}

	candidates := codeindex.CandidateLimit(req.Limit)

	vectorIDs, err := s.searchVector(ctx, req.Table, req.Vector, candidates)
	if err != nil {
		return nil, err
	}
	textIDs, err := s.searchText(ctx, req.Table, req.Query, candidates)
	if err != nil {
		return nil, err
	}

	fused := codeindex.FuseRRF(vectorIDs, textIDs)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	return s.loadRows(ctx, req.Table, req.Schema, fused)
}

func (s *Store) ensureTable(ctx context.Context, name string) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+registryTable+` WHERE name = ?`, name,
	).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return nil
}

// searchVector は全行のベクトルとのコサイン類似度で上位 limit 件の ID を返す
func (s *Store) searchVector(ctx context.Context, table string, query []float32, limit int) ([]int64, error) {
	if len(query) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, embedding FROM "+quote(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []candidate
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec := deserializeVector(blob)
		if len(vec) != len(query) {
			continue
		}
		candidates = append(candidates, candidate{id: id, score: cosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 同点は挿入順
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids, nil
}

// searchText は FTS5 の bm25 順で上位 limit 件の ID を返す
func (s *Store) searchText(ctx context.Context, table, query string, limit int) ([]int64, error) {
	match := matchExpression(query)
	if match == "" {
		return nil, nil
	}

	fts := quote(table + ftsSuffix)
	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid FROM "+fts+" WHERE "+fts+" MATCH ? ORDER BY bm25("+fts+") LIMIT ?",
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan FTS result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// loadRows は ID の順序を保って行を読み込む
func (s *Store) loadRows(ctx context.Context, table string, schema codeindex.Schema, ids []int64) ([]codeindex.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		quoted[i] = quote(c)
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, "+strings.Join(quoted, ", ")+" FROM "+quote(table)+
			" WHERE id IN ("+strings.Join(placeholders, ", ")+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *Store) transact(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// matchExpression はクエリの語を OR で結んだ FTS5 の検索式を返す。語がなければ空文字
func matchExpression(query string) string {
	terms := codeindex.QueryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

func fieldValue(fields map[string]string, col string) string {
	if v := fields[col]; v != "" {
		return v
	}
	return codeindex.Sentinel
}

// quote は識別子を二重引用符で囲む（references などの予約語を列名に使うため）
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
