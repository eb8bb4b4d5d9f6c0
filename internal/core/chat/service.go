package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/doc-rag/internal/core/citation"
	"github.com/jinford/doc-rag/internal/core/index"
	"github.com/jinford/doc-rag/internal/core/llm"
)

const (
	// DefaultTopK はTopK未指定時に取得するチャンク数
	DefaultTopK = 5

	// DefaultRelevanceThreshold は生成を打ち切る関連度スコアの下限
	DefaultRelevanceThreshold = 0.3

	// DefaultMaxContextTokens はコンテキストに使えるトークン数の上限
	DefaultMaxContextTokens = 6000
)

// TokenCounter はテキストのトークン数をカウントする
type TokenCounter interface {
	CountTokens(text string) int
}

// Service は検索で裏付けられた質問応答を提供する
type Service struct {
	embedder  llm.Embedder
	idx       index.Index
	generator llm.Generator
	counter   TokenCounter
	history   *History
	logger    *slog.Logger

	topK             int
	threshold        float64
	maxContextTokens int
}

// ServiceOption はServiceのオプション設定
type ServiceOption func(*Service)

// WithLogger はServiceにロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTopK はデフォルトの取得チャンク数を設定する
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithRelevanceThreshold は関連度スコアの下限を設定する
func WithRelevanceThreshold(threshold float64) ServiceOption {
	return func(s *Service) {
		s.threshold = threshold
	}
}

// WithMaxContextTokens はコンテキストのトークン上限を設定する
func WithMaxContextTokens(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.maxContextTokens = limit
		}
	}
}

// WithTokenCounter はトークンカウンタを設定する
// 未設定の場合はトークン上限によるコンテキスト削減を行わない
func WithTokenCounter(counter TokenCounter) ServiceOption {
	return func(s *Service) {
		s.counter = counter
	}
}

// WithHistory はチャット履歴の記録先を設定する
func WithHistory(history *History) ServiceOption {
	return func(s *Service) {
		s.history = history
	}
}

// NewService は新しいServiceを作成する
func NewService(
	embedder llm.Embedder,
	idx index.Index,
	generator llm.Generator,
	opts ...ServiceOption,
) *Service {
	svc := &Service{
		embedder:         embedder,
		idx:              idx,
		generator:        generator,
		logger:           slog.Default(),
		topK:             DefaultTopK,
		threshold:        DefaultRelevanceThreshold,
		maxContextTokens: DefaultMaxContextTokens,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Chat は質問に対して検索で裏付けられた回答を生成する
// 定型応答（リフューザル）は正常終了として扱う
func (s *Service) Chat(ctx context.Context, params ChatParams) (*ChatResult, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	topK := params.TopK
	if topK <= 0 {
		topK = s.topK
	}

	// 1. クエリを埋め込みに変換する（クエリモード）
	vectors, err := s.embedder.Embed(ctx, []string{params.Query}, llm.EmbedModeQuery)
	if err != nil {
		return nil, err
	}

	// 2. 類似チャンクを検索する
	sources, err := s.idx.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, err
	}

	s.logger.Info("retrieval completed",
		"query", params.Query,
		"topK", topK,
		"retrieved", len(sources),
	)

	if len(sources) == 0 {
		return s.commitTurn(ctx, params.Query, &ChatResult{
			Answer:  NoDocumentsAnswer,
			Sources: []index.RetrievedSource{},
			Refused: true,
		})
	}

	// 3. グラウンディングガード: 全スコアが閾値未満なら生成を呼ばずに定型応答を返す
	if s.allBelowThreshold(sources) {
		s.logger.Info("grounding guard triggered",
			"threshold", s.threshold,
			"topScore", sources[0].Score,
		)
		return s.commitTurn(ctx, params.Query, &ChatResult{
			Answer:  RefusalAnswer,
			Sources: sources,
			Refused: true,
		})
	}

	// 4. トークン上限に収まるよう末尾のチャンクから削る
	sources = s.trimToBudget(params.Query, sources)

	// 5. プロンプトを組み立てて回答を生成する
	prompt := BuildAnswerPrompt(params.Query, sources)
	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// 6. 引用トークンを採番済みの参照に解決する
	// 生成に渡したソースリストをそのまま渡す
	resolved := citation.Resolve(raw, sources)

	s.logger.Info("chat completed",
		"answerLength", len(resolved.DisplayText),
		"citations", len(resolved.Citations),
		"sources", len(sources),
	)

	return s.commitTurn(ctx, params.Query, &ChatResult{
		Answer:    resolved.DisplayText,
		Citations: resolved.Citations,
		Sources:   sources,
	})
}

// commitTurn は結果を履歴に記録して返す
// キャンセル済みの要求はターンを記録しない
func (s *Service) commitTurn(ctx context.Context, query string, result *ChatResult) (*ChatResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.history != nil {
		s.history.Append(ChatTurn{
			Query:     query,
			Answer:    result.Answer,
			Sources:   result.Sources,
			Timestamp: time.Now(),
		})
	}
	return result, nil
}

// allBelowThreshold は全検索結果のスコアが閾値未満かどうかを返す
func (s *Service) allBelowThreshold(sources []index.RetrievedSource) bool {
	for _, src := range sources {
		if src.Score >= s.threshold {
			return false
		}
	}
	return true
}

// trimToBudget はコンテキストのトークン上限に収まるまでランク下位のチャンクを落とす
// 先頭のチャンクは必ず残す
func (s *Service) trimToBudget(query string, sources []index.RetrievedSource) []index.RetrievedSource {
	if s.counter == nil {
		return sources
	}

	budget := s.maxContextTokens - s.counter.CountTokens(query)
	kept := sources[:0:0]
	used := 0
	for _, src := range sources {
		cost := s.counter.CountTokens(src.Text)
		if len(kept) > 0 && used+cost > budget {
			break
		}
		kept = append(kept, src)
		used += cost
	}

	if len(kept) < len(sources) {
		s.logger.Info("context trimmed to token budget",
			"kept", len(kept),
			"dropped", len(sources)-len(kept),
			"tokens", used,
		)
	}
	return kept
}
