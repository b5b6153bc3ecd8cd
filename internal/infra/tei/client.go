// Package tei は Text Embeddings Inference サーバーの /embed と /rerank を呼び出す。
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/search"
)

const (
	// DefaultTimeout はリクエストのタイムアウト
	DefaultTimeout = 60 * time.Second

	defaultBatchSize = 32
)

// Client は TEI サーバーのクライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
	batchSize  int
}

// Option は Client のオプション設定
type Option func(*Client)

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBatchSize は 1 リクエストで送る最大件数を設定する
func WithBatchSize(n int) Option {
	return func(cl *Client) {
		cl.batchSize = n
	}
}

// NewClient は新しい Client を作成する
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		batchSize:  defaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize <= 0 {
		c.batchSize = defaultBatchSize
	}
	return c
}

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// BatchEmbed は texts の埋め込みを入力順に返す
func (c *Client) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	var vectors [][]float32
	if err := c.post(ctx, "/embed", embedRequest{Inputs: texts, Truncate: true}, &vectors); err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	copy(out, vectors)
	return out, nil
}

// MaxBatchSize は 1 リクエストで送る最大件数を返す
func (c *Client) MaxBatchSize() int {
	return c.batchSize
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank は texts を query との関連度の高い順に並べたインデックスを返す
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]int, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var results []rerankResult
	if err := c.post(ctx, "/rerank", rerankRequest{Query: query, Texts: texts, Truncate: true}, &results); err != nil {
		return nil, fmt.Errorf("failed to rerank: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	order := make([]int, 0, len(results))
	for _, r := range results {
		order = append(order, r.Index)
	}
	return order, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var (
	_ codeindex.Embedder = (*Client)(nil)
	_ search.Reranker    = (*Client)(nil)
)
