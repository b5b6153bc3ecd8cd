package codeindex

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Schema はテーブルの列構成
type Schema struct {
	Columns     []string // 埋め込みベクトル以外の列（すべて NOT NULL のテキスト）
	SourceField string   // 埋め込みと全文検索の対象列
	RerankField string   // 再ランク付けに使う列
}

// MethodSchema はメソッドテーブルのスキーマ
var MethodSchema = Schema{
	Columns:     []string{"code", "file_path", "class_name", "name", "doc_comment", "source_code", "references"},
	SourceField: "code",
	RerankField: "source_code",
}

// ClassSchema はクラステーブルのスキーマ
var ClassSchema = Schema{
	Columns:     []string{"source_code", "file_path", "class_name", "constructor_declaration", "method_declarations", "references"},
	SourceField: "source_code",
	RerankField: "source_code",
}

// Row はベクトルストアに格納する 1 行
type Row struct {
	Fields    map[string]string
	Embedding []float32
}

// SearchRequest はハイブリッド検索の入力
type SearchRequest struct {
	Table  string
	Schema Schema
	Query  string    // 全文検索に使う文字列
	Vector []float32 // クエリの埋め込み
	Limit  int
}

// Store はプロジェクトのテーブルを保持するベクトルストア
type Store interface {
	// CreateTable は既存テーブルを破棄して空のテーブルを作る（上書き）
	CreateTable(ctx context.Context, name string, schema Schema) error
	AddRows(ctx context.Context, name string, schema Schema, rows []Row) error
	DropTable(ctx context.Context, name string) error
	TableNames(ctx context.Context) ([]string, error)
	// HybridSearch はベクトル近傍と全文検索を融合した上位 Limit 件を返す
	HybridSearch(ctx context.Context, req SearchRequest) ([]Row, error)
	Close() error
}

// Opener はプロジェクトの成果物ディレクトリに対応するストアを開く
type Opener interface {
	Open(ctx context.Context, artifactsDir string) (Store, error)
}

// Embedder はテキストを埋め込みベクトルに変換する
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
}

// RRFK は Reciprocal Rank Fusion の定数
const RRFK = 60.0

// FuseRRF はベクトル検索と全文検索の順位リスト（ID の並び）を RRF で融合し、
// スコアの高い順に ID を返す。同点はベクトル側の順位、次に ID で決める
func FuseRRF(vectorIDs, textIDs []int64) []int64 {
	scores := make(map[int64]float64)
	firstSeen := make(map[int64]int)
	order := 0
	add := func(ids []int64) {
		for rank, id := range ids {
			scores[id] += 1.0 / (RRFK + float64(rank+1))
			if _, ok := firstSeen[id]; !ok {
				firstSeen[id] = order
				order++
			}
		}
	}
	add(vectorIDs)
	add(textIDs)

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return firstSeen[ids[i]] < firstSeen[ids[j]]
	})
	return ids
}

// CandidateLimit は融合前に各検索から取得する件数
func CandidateLimit(limit int) int {
	if limit <= 0 {
		limit = 5
	}
	return min(max(limit*4, 20), 200)
}

var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// QueryTerms は全文検索用にクエリを英数字の語へ分割する（小文字化・重複除去）
func QueryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, t := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}
