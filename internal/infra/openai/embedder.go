package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/jinford/doc-rag/internal/core/llm"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はデフォルトのベクトル次元
	DefaultEmbeddingDimension = 1536
	// MaxEmbeddingBatchSize は1回のAPI呼び出しの最大テキスト数
	MaxEmbeddingBatchSize = 100
	// DefaultEmbeddingTimeout はAPI呼び出しのタイムアウト
	DefaultEmbeddingTimeout = 60 * time.Second
	// DefaultEmbeddingRPS は埋め込みAPIへの秒間リクエスト上限
	DefaultEmbeddingRPS = 5
)

// queryInstruction はクエリモードで前置する検索向け指示
// 一部の埋め込みモデルはクエリと文書を非対称にエンコードした方が検索精度が上がる
const queryInstruction = "Instruct: Given a search query, retrieve relevant passages that answer the query\nQuery: "

// Embedder はOpenAI APIを使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	timeout   time.Duration
	retry     RetryPolicy
	limiter   *rate.Limiter
}

type embedderOptions struct {
	model     string
	dimension int
	timeout   time.Duration
	retry     RetryPolicy
	rps       float64
}

// EmbedderOption はEmbedderのオプション設定
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

// WithEmbeddingTimeout はAPI呼び出しのタイムアウトを上書きする
func WithEmbeddingTimeout(timeout time.Duration) EmbedderOption {
	return func(o *embedderOptions) {
		o.timeout = timeout
	}
}

// WithEmbeddingRetryPolicy はリトライ方針を上書きする
func WithEmbeddingRetryPolicy(policy RetryPolicy) EmbedderOption {
	return func(o *embedderOptions) {
		o.retry = policy
	}
}

// NewEmbedder は新しいEmbedderを作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		timeout:   DefaultEmbeddingTimeout,
		retry:     DefaultRetryPolicy(),
		rps:       DefaultEmbeddingRPS,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Embedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     options.model,
		dimension: options.dimension,
		timeout:   options.timeout,
		retry:     options.retry,
		limiter:   rate.NewLimiter(rate.Limit(options.rps), 1),
	}
}

var _ llm.Embedder = (*Embedder)(nil)

// Embed は複数テキストのEmbeddingを位置を揃えて生成する
// 一時的な失敗はバックオフ付きでリトライし、枯渇した場合はEmbeddingErrorを返す
func (e *Embedder) Embed(ctx context.Context, texts []string, mode llm.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, llm.NewEmbeddingError("no texts provided", nil)
	}
	if len(texts) > MaxEmbeddingBatchSize {
		return nil, llm.NewEmbeddingError(
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(texts), MaxEmbeddingBatchSize), nil)
	}

	inputs := formatInputs(texts, mode)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, llm.NewEmbeddingError("rate limiter wait aborted", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.retry.wait(ctx, attempt); err != nil {
				return nil, llm.NewEmbeddingError("retry aborted", err)
			}
		}

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: inputs,
			},
			Dimensions: openai.Int(int64(e.dimension)),
		})
		if err != nil {
			lastErr = err
			if isTransient(err) {
				continue
			}
			return nil, llm.NewEmbeddingError("api call failed", err)
		}

		return e.convert(resp, len(texts))
	}

	return nil, llm.NewEmbeddingError("max retries exceeded", lastErr)
}

// convert はAPIレスポンスを検証しながらベクトル列に変換する
// 次元不一致は不正ベクトルを保存しないよう即座に失敗させる
func (e *Embedder) convert(resp *openai.CreateEmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, llm.NewEmbeddingError(
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(resp.Data), want), nil)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != e.dimension {
			return nil, llm.NewEmbeddingError(
				fmt.Sprintf("vector dimension mismatch: got %d, want %d", len(data.Embedding), e.dimension), nil)
		}
		vector := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float32(v)
		}
		embeddings[i] = vector
	}
	return embeddings, nil
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return MaxEmbeddingBatchSize
}

// formatInputs は埋め込みモードに応じて入力テキストを整形する
func formatInputs(texts []string, mode llm.EmbedMode) []string {
	if mode != llm.EmbedModeQuery {
		return texts
	}
	formatted := make([]string, len(texts))
	for i, t := range texts {
		formatted[i] = queryInstruction + t
	}
	return formatted
}
