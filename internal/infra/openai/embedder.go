package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/codeqa/internal/core/codeindex"
)

// Metadata は埋め込みモデルの情報
type Metadata struct {
	ModelName string
	Dimension int
}

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
}

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536

	maxBatchSize = 100
)

type embedderOptions struct {
	model         string
	dimension     int
	batchSize     int
	clientOptions []option.RequestOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingBatchSize は 1 リクエストで送る最大件数を設定する（上限 100）
func WithEmbeddingBatchSize(n int) EmbedderOption {
	return func(o *embedderOptions) {
		o.batchSize = n
	}
}

// WithEmbeddingClientOptions は API クライアントのオプションを追加する
func WithEmbeddingClientOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.clientOptions = append(o.clientOptions, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		batchSize: maxBatchSize,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.batchSize <= 0 || options.batchSize > maxBatchSize {
		options.batchSize = maxBatchSize
	}

	return &Embedder{
		client: openai.NewClient(
			append([]option.RequestOption{option.WithAPIKey(apiKey)}, options.clientOptions...)...,
		),
		model:     options.model,
		dimension: options.dimension,
		batchSize: options.batchSize,
	}
}

// BatchEmbed はバッチで Embedding を生成する（最大100件）
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size exceeds maximum of %d", maxBatchSize)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// 入力順に並べる。欠けた要素は空ベクトルのまま返し、呼び出し側で除外する
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			continue
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[data.Index] = vector
	}

	return embeddings, nil
}

// MaxBatchSize はバッチ処理の最大サイズを返す（OpenAI APIは最大100件）
func (e *Embedder) MaxBatchSize() int {
	return e.batchSize
}

// Metadata はモデル情報を返す
func (e *Embedder) Metadata() Metadata {
	return Metadata{
		ModelName: e.model,
		Dimension: e.dimension,
	}
}

// インターフェース実装の確認
var _ codeindex.Embedder = (*Embedder)(nil)
