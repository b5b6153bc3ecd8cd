package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
)

const (
	// DefaultFetch は各テーブルから取得する件数
	DefaultFetch = 5
	// DefaultKeep はコンテキストに残す件数
	DefaultKeep = 3
)

// Reranker は検索結果を query との関連度で並べ替える。
// 戻り値は texts のインデックスを関連度の高い順に並べたもの
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]int, error)
}

// Retrieval は 1 回の検索結果
type Retrieval struct {
	Methods []codeindex.MethodRecord
	Classes []codeindex.ClassRecord
}

// Retriever はプロジェクトのメソッド／クラステーブルをハイブリッド検索する
type Retriever struct {
	layout   *project.Layout
	opener   codeindex.Opener
	embedder codeindex.Embedder
	reranker Reranker
	expander *QueryExpander
	fetch    int
	keep     int
	cache    *lru.Cache[string, cachedRetrieval]
	logger   *slog.Logger
}

// cachedRetrieval は検索結果と、その時点の成果物ディレクトリの状態
type cachedRetrieval struct {
	stamp  string
	result *Retrieval
}

type retrieverOptions struct {
	reranker  Reranker
	expander  *QueryExpander
	fetch     int
	keep      int
	cacheSize int
	logger    *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*retrieverOptions)

// WithReranker は再ランク付けを設定する
func WithReranker(r Reranker) RetrieverOption {
	return func(o *retrieverOptions) {
		o.reranker = r
	}
}

// WithQueryExpander はクエリ書き換えを設定する
func WithQueryExpander(e *QueryExpander) RetrieverOption {
	return func(o *retrieverOptions) {
		o.expander = e
	}
}

// WithLimits は取得件数と保持件数を設定する
func WithLimits(fetch, keep int) RetrieverOption {
	return func(o *retrieverOptions) {
		o.fetch = fetch
		o.keep = keep
	}
}

// WithCacheSize は検索結果キャッシュの件数を設定する。0 でキャッシュしない
func WithCacheSize(n int) RetrieverOption {
	return func(o *retrieverOptions) {
		o.cacheSize = n
	}
}

// WithRetrieverLogger はロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(o *retrieverOptions) {
		o.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(layout *project.Layout, opener codeindex.Opener, embedder codeindex.Embedder, opts ...RetrieverOption) (*Retriever, error) {
	options := retrieverOptions{
		fetch:  DefaultFetch,
		keep:   DefaultKeep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.fetch <= 0 {
		options.fetch = DefaultFetch
	}
	if options.keep <= 0 || options.keep > options.fetch {
		return nil, fmt.Errorf("invalid search limits: fetch=%d keep=%d", options.fetch, options.keep)
	}

	r := &Retriever{
		layout:   layout,
		opener:   opener,
		embedder: embedder,
		reranker: options.reranker,
		expander: options.expander,
		fetch:    options.fetch,
		keep:     options.keep,
		logger:   options.logger,
	}
	if options.cacheSize > 0 {
		cache, err := lru.New[string, cachedRetrieval](options.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Retrieve は slug のテーブルを検索し、上位のメソッドとクラスを返す。
// テーブルが存在しない場合は *NotIngestedError を返す。
// キャッシュは成果物ディレクトリが前回の検索時から変わっていない場合だけ使う
func (r *Retriever) Retrieve(ctx context.Context, slug, query string, rerank bool) (*Retrieval, error) {
	methodTable := project.MethodTable(slug)
	classTable := project.ClassTable(slug)
	if !r.layout.Exists(slug) {
		r.Invalidate(slug)
		return nil, &NotIngestedError{Slug: slug, Tables: []string{methodTable, classTable}}
	}

	key := cacheKey(slug, query, rerank)
	var stamp string
	if r.cache != nil {
		var err error
		stamp, err = artifactStamp(r.layout.ArtifactsDir(slug))
		if err != nil {
			return nil, err
		}
		if hit, ok := r.cache.Get(key); ok {
			if hit.stamp == stamp {
				r.logger.Debug("キャッシュから検索結果を返します", "slug", slug)
				return hit.result, nil
			}
			r.logger.Debug("成果物が更新されたためキャッシュを破棄します", "slug", slug)
			r.Invalidate(slug)
		}
	}

	store, err := r.opener.Open(ctx, r.layout.ArtifactsDir(slug))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			r.logger.Warn("ベクトルストアのクローズに失敗", "error", closeErr)
		}
	}()

	if err := r.ensureTables(ctx, store, slug, methodTable, classTable); err != nil {
		return nil, err
	}

	hydeQuery := r.expander.Expand(ctx, query)
	result, err := r.search(ctx, store, methodTable, classTable, hydeQuery)
	if err != nil {
		return nil, err
	}

	if r.expander.Mode() == HydeTwoPass {
		refined := r.expander.Refine(ctx, query, tempContext(result), hydeQuery)
		if refined != hydeQuery {
			result, err = r.search(ctx, store, methodTable, classTable, refined)
			if err != nil {
				return nil, err
			}
		}
		hydeQuery = refined
	}

	if rerank {
		if err := r.rerank(ctx, hydeQuery, result); err != nil {
			return nil, err
		}
	}

	result.Methods = result.Methods[:min(r.keep, len(result.Methods))]
	result.Classes = result.Classes[:min(r.keep, len(result.Classes))]

	if r.cache != nil {
		r.cache.Add(key, cachedRetrieval{stamp: stamp, result: result})
	}
	return result, nil
}

// artifactStamp は成果物ディレクトリ直下のファイル名と更新時刻とサイズから状態を表す文字列を作る。
// 再取り込みは成果物を作り直すため、別プロセスによる取り込みもこれで検出できる。
// SQLite の WAL と共有メモリファイルは読み取りでも増減するため含めない
func artifactStamp(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read artifacts dir: %w", err)
	}

	h := sha256.New()
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, "-wal") || strings.HasSuffix(name, "-shm") || strings.HasSuffix(name, "-journal") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// 読み取り中に消えたファイルは状態の変化として扱う
			fmt.Fprintf(h, "%s\x00gone\x00", name)
			continue
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00", name, fi.ModTime().UnixNano(), fi.Size())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Invalidate は slug のキャッシュを破棄する
func (r *Retriever) Invalidate(slug string) {
	if r.cache == nil {
		return
	}
	prefix := slug + "\x00"
	for _, k := range r.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			r.cache.Remove(k)
		}
	}
}

func (r *Retriever) ensureTables(ctx context.Context, store codeindex.Store, slug string, tables ...string) error {
	names, err := store.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	present := make(map[string]struct{}, len(names))
	for _, n := range names {
		present[n] = struct{}{}
	}
	var missing []string
	for _, t := range tables {
		if _, ok := present[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return &NotIngestedError{Slug: slug, Tables: missing}
	}
	return nil
}

// search はメソッドテーブルとクラステーブルを並行して検索する
func (r *Retriever) search(ctx context.Context, store codeindex.Store, methodTable, classTable, query string) (*Retrieval, error) {
	vectors, err := r.embedder.BatchEmbed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("failed to embed query: empty vector")
	}

	type searchResult struct {
		rows []codeindex.Row
		err  error
	}
	methodCh := make(chan searchResult, 1)
	classCh := make(chan searchResult, 1)

	go func() {
		rows, err := store.HybridSearch(ctx, codeindex.SearchRequest{
			Table: methodTable, Schema: codeindex.MethodSchema, Query: query, Vector: vectors[0], Limit: r.fetch,
		})
		methodCh <- searchResult{rows: rows, err: err}
	}()
	go func() {
		rows, err := store.HybridSearch(ctx, codeindex.SearchRequest{
			Table: classTable, Schema: codeindex.ClassSchema, Query: query, Vector: vectors[0], Limit: r.fetch,
		})
		classCh <- searchResult{rows: rows, err: err}
	}()

	methodRes := <-methodCh
	classRes := <-classCh
	if methodRes.err != nil {
		return nil, fmt.Errorf("method search failed: %w", methodRes.err)
	}
	if classRes.err != nil {
		return nil, fmt.Errorf("class search failed: %w", classRes.err)
	}

	result := &Retrieval{
		Methods: make([]codeindex.MethodRecord, 0, len(methodRes.rows)),
		Classes: make([]codeindex.ClassRecord, 0, len(classRes.rows)),
	}
	for _, row := range methodRes.rows[:min(r.fetch, len(methodRes.rows))] {
		result.Methods = append(result.Methods, codeindex.MethodRecordFromFields(row.Fields))
	}
	for _, row := range classRes.rows[:min(r.fetch, len(classRes.rows))] {
		result.Classes = append(result.Classes, codeindex.ClassRecordFromFields(row.Fields))
	}
	return result, nil
}

func (r *Retriever) rerank(ctx context.Context, query string, result *Retrieval) error {
	if r.reranker == nil {
		r.logger.Debug("リランカーが未設定のため検索順のまま返します")
		return nil
	}

	if len(result.Methods) > 1 {
		texts := make([]string, len(result.Methods))
		for i, m := range result.Methods {
			texts[i] = m.SourceCode
		}
		order, err := r.reranker.Rerank(ctx, query, texts)
		if err != nil {
			return fmt.Errorf("failed to rerank methods: %w", err)
		}
		result.Methods = reorder(result.Methods, order)
	}

	if len(result.Classes) > 1 {
		texts := make([]string, len(result.Classes))
		for i, c := range result.Classes {
			texts[i] = c.SourceCode
		}
		order, err := r.reranker.Rerank(ctx, query, texts)
		if err != nil {
			return fmt.Errorf("failed to rerank classes: %w", err)
		}
		result.Classes = reorder(result.Classes, order)
	}
	return nil
}

// reorder は order の並びで items を並べ替える。範囲外や重複したインデックスは無視し、
// order に含まれない要素は元の順序で末尾に付ける
func reorder[T any](items []T, order []int) []T {
	out := make([]T, 0, len(items))
	used := make([]bool, len(items))
	for _, i := range order {
		if i < 0 || i >= len(items) || used[i] {
			continue
		}
		used[i] = true
		out = append(out, items[i])
	}
	for i, item := range items {
		if !used[i] {
			out = append(out, item)
		}
	}
	return out
}

func tempContext(r *Retrieval) string {
	parts := make([]string, 0, len(r.Methods)+len(r.Classes))
	for _, m := range r.Methods {
		parts = append(parts, m.Code)
	}
	for _, c := range r.Classes {
		parts = append(parts, c.SourceCode)
	}
	return strings.Join(parts, "\n")
}

func cacheKey(slug, query string, rerank bool) string {
	sum := sha256.Sum256([]byte(slug + "\x00" + query + "\x00" + strconv.FormatBool(rerank)))
	return slug + "\x00" + hex.EncodeToString(sum[:])
}
