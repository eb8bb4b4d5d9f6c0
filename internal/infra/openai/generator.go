package openai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/jinford/doc-rag/internal/core/llm"
)

const (
	// DefaultGenerationModel はデフォルトで使用する生成モデル
	DefaultGenerationModel = "gpt-4o-mini"
	// DefaultGenerationTimeout はAPI呼び出しのタイムアウト
	DefaultGenerationTimeout = 120 * time.Second
	// DefaultGenerationTemperature は根拠付き回答向けの低めの温度
	DefaultGenerationTemperature = 0.3
	// DefaultGenerationRPS は生成APIへの秒間リクエスト上限
	DefaultGenerationRPS = 2
)

// Generator はOpenAI APIを使用して回答テキストを生成する
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	retry       RetryPolicy
	limiter     *rate.Limiter
}

type generatorOptions struct {
	model       string
	temperature float64
	timeout     time.Duration
	retry       RetryPolicy
	rps         float64
}

// GeneratorOption はGeneratorのオプション設定
type GeneratorOption func(*generatorOptions)

// WithGenerationModel はモデル名を上書きする
func WithGenerationModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		o.model = model
	}
}

// WithGenerationTemperature は温度を上書きする
func WithGenerationTemperature(temperature float64) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = temperature
	}
}

// WithGenerationTimeout はAPI呼び出しのタイムアウトを上書きする
func WithGenerationTimeout(timeout time.Duration) GeneratorOption {
	return func(o *generatorOptions) {
		o.timeout = timeout
	}
}

// WithGenerationRetryPolicy はリトライ方針を上書きする
func WithGenerationRetryPolicy(policy RetryPolicy) GeneratorOption {
	return func(o *generatorOptions) {
		o.retry = policy
	}
}

// NewGenerator は新しいGeneratorを作成する
func NewGenerator(apiKey string, opts ...GeneratorOption) *Generator {
	options := generatorOptions{
		model:       DefaultGenerationModel,
		temperature: DefaultGenerationTemperature,
		timeout:     DefaultGenerationTimeout,
		retry:       DefaultRetryPolicy(),
		rps:         DefaultGenerationRPS,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Generator{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		timeout:     options.timeout,
		retry:       options.retry,
		limiter:     rate.NewLimiter(rate.Limit(options.rps), 1),
	}
}

var _ llm.Generator = (*Generator)(nil)

// Generate はプロンプトに対する回答を生成する
// プロバイダの失敗はリトライ枯渇後にGenerationErrorとして返す
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", llm.NewGenerationError("rate limiter wait aborted", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.retry.wait(ctx, attempt); err != nil {
				return "", llm.NewGenerationError("retry aborted", err)
			}
		}

		completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(g.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(g.temperature),
		})
		if err != nil {
			lastErr = err
			if isTransient(err) {
				continue
			}
			return "", llm.NewGenerationError("api call failed", err)
		}

		if len(completion.Choices) == 0 {
			return "", llm.NewGenerationError("no completion choices returned", nil)
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", llm.NewGenerationError("max retries exceeded", lastErr)
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.model
}
