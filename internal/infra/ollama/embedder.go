// Package ollama はローカルの Ollama サーバーで埋め込みを計算する。
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/jinford/codeqa/internal/core/codeindex"
)

const (
	// DefaultModel はモデル未指定時の埋め込みモデル
	DefaultModel = "nomic-embed-text"
	// DefaultTimeout は 1 リクエストのタイムアウト
	DefaultTimeout = 2 * time.Minute

	defaultBatchSize     = 32
	defaultMaxConcurrent = 4
)

// Embedder は Ollama の /api/embed を使う codeindex.Embedder 実装
type Embedder struct {
	client    *api.Client
	model     string
	batchSize int
	timeout   time.Duration
	reqLock   *semaphore.Weighted
}

// Params は Embedder の設定
type Params struct {
	BaseURL       string // 空なら http://localhost:11434
	Model         string
	BatchSize     int
	MaxConcurrent int64
	HTTPClient    *http.Client
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(params Params) (*Embedder, error) {
	u, err := url.Parse("http://localhost:11434")
	if err != nil {
		return nil, err
	}
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama url: %w", err)
		}
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if params.Model == "" {
		params.Model = DefaultModel
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.MaxConcurrent <= 0 {
		params.MaxConcurrent = defaultMaxConcurrent
	}

	return &Embedder{
		client:    api.NewClient(u, httpClient),
		model:     params.Model,
		batchSize: params.BatchSize,
		timeout:   DefaultTimeout,
		reqLock:   semaphore.NewWeighted(params.MaxConcurrent),
	}, nil
}

// BatchEmbed は texts の埋め込みを入力順に返す
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	rCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer e.reqLock.Release(1)

	res, err := e.client.Embed(rCtx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// 件数が合わない場合は不足分を空ベクトルにして呼び出し側で除外させる
	out := make([][]float32, len(texts))
	copy(out, res.Embeddings)
	return out, nil
}

// MaxBatchSize は 1 リクエストで送る最大件数を返す
func (e *Embedder) MaxBatchSize() int {
	return e.batchSize
}

// インターフェース実装の確認
var _ codeindex.Embedder = (*Embedder)(nil)
