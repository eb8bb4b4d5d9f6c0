package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/chat"
	"github.com/jinford/doc-rag/internal/core/index"
	"github.com/jinford/doc-rag/internal/core/llm"
)

type fakeEmbedder struct {
	lastMode llm.EmbedMode
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, mode llm.EmbedMode) ([][]float32, error) {
	f.lastMode = mode
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }

type fakeIndex struct {
	results []index.RetrievedSource
	lastK   int
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, _ []index.Entry) error { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, k int) ([]index.RetrievedSource, error) {
	f.lastK = k
	return f.results, nil
}

func (f *fakeIndex) Delete(_ context.Context, _ string) error { return nil }

type fakeGenerator struct {
	answer  string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fixedCounter は全テキストを一律のトークン数とみなすカウンタ
type fixedCounter struct {
	perText int
}

func (f *fixedCounter) CountTokens(_ string) int { return f.perText }

func source(docID string, chunkID, page int, fileName, text string, score float64) index.RetrievedSource {
	return index.RetrievedSource{
		Entry: index.Entry{
			DocID:    docID,
			ChunkID:  chunkID,
			Page:     mo.Some(page),
			Text:     text,
			FileName: fileName,
		},
		Score: score,
	}
}

func TestChat_ResolvesCitationTokensToNumberedReferences(t *testing.T) {
	embedder := &fakeEmbedder{}
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 7, 4, "report.pdf", "Revenue grew 12% year over year.", 0.91),
		source("d1", 8, 5, "report.pdf", "Costs fell due to automation.", 0.85),
	}}
	generator := &fakeGenerator{
		answer: "Revenue grew 12%. [source:report.pdf | page 4 | chunk 7] Costs fell too. [source:report.pdf | page 5 | chunk 8]",
	}
	svc := chat.NewService(embedder, idx, generator)

	result, err := svc.Chat(context.Background(), chat.ChatParams{Query: "How did revenue develop?"})
	require.NoError(t, err)

	assert.Equal(t, "Revenue grew 12%. [1] Costs fell too. [2]", result.Answer)
	require.Len(t, result.Citations, 2)
	assert.Equal(t, 1, result.Citations[0].Number)
	assert.Equal(t, "report.pdf", result.Citations[0].FileName)
	require.NotNil(t, result.Citations[0].Source)
	assert.Equal(t, "Revenue grew 12% year over year.", result.Citations[0].Source.Text)
	assert.False(t, result.Refused)
	assert.Equal(t, idx.results, result.Sources)

	// クエリはクエリモードで埋め込まれる
	assert.Equal(t, llm.EmbedModeQuery, embedder.lastMode)
	assert.Equal(t, chat.DefaultTopK, idx.lastK)
}

func TestChat_AllScoresBelowThresholdSkipsGeneration(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "irrelevant text", 0.12),
		source("d2", 3, 2, "other.txt", "also irrelevant", 0.08),
	}}
	generator := &fakeGenerator{answer: "should not be called"}
	svc := chat.NewService(&fakeEmbedder{}, idx, generator)

	result, err := svc.Chat(context.Background(), chat.ChatParams{Query: "unrelated question"})
	require.NoError(t, err)

	assert.True(t, result.Refused)
	assert.Equal(t, chat.RefusalAnswer, result.Answer)
	assert.Zero(t, generator.calls)
}

func TestChat_SingleScoreAboveThresholdGenerates(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "relevant", 0.45),
		source("d2", 3, 2, "other.txt", "weak", 0.05),
	}}
	generator := &fakeGenerator{answer: "answer without citations"}
	svc := chat.NewService(&fakeEmbedder{}, idx, generator)

	result, err := svc.Chat(context.Background(), chat.ChatParams{Query: "q"})
	require.NoError(t, err)

	assert.False(t, result.Refused)
	assert.Equal(t, 1, generator.calls)
	assert.Empty(t, result.Citations)
}

func TestChat_EmptyIndexReturnsNoDocumentsAnswer(t *testing.T) {
	generator := &fakeGenerator{answer: "should not be called"}
	svc := chat.NewService(&fakeEmbedder{}, &fakeIndex{}, generator)

	result, err := svc.Chat(context.Background(), chat.ChatParams{Query: "q"})
	require.NoError(t, err)

	assert.True(t, result.Refused)
	assert.Equal(t, chat.NoDocumentsAnswer, result.Answer)
	assert.Zero(t, generator.calls)
}

func TestChat_GenerationFailureRecordsNoTurn(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "relevant", 0.9),
	}}
	generator := &fakeGenerator{err: llm.NewGenerationError("timeout", context.DeadlineExceeded)}
	history := chat.NewHistory()
	svc := chat.NewService(&fakeEmbedder{}, idx, generator, chat.WithHistory(history))

	_, err := svc.Chat(context.Background(), chat.ChatParams{Query: "q"})

	var genErr *llm.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Empty(t, history.Turns())
}

func TestChat_CancelledContextRecordsNoTurn(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "relevant", 0.9),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	generator := &fakeGenerator{answer: "answer"}
	history := chat.NewHistory()
	svc := chat.NewService(&fakeEmbedder{}, idx, generator, chat.WithHistory(history))

	cancel()
	_, err := svc.Chat(ctx, chat.ChatParams{Query: "q"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history.Turns())
}

func TestChat_SuccessAndRefusalRecordTurns(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "relevant", 0.9),
	}}
	history := chat.NewHistory()
	svc := chat.NewService(&fakeEmbedder{}, idx, &fakeGenerator{answer: "answer"}, chat.WithHistory(history))

	_, err := svc.Chat(context.Background(), chat.ChatParams{Query: "first"})
	require.NoError(t, err)

	// リフューザルも正常終了として記録される
	idx.results = []index.RetrievedSource{source("d1", 0, 1, "report.pdf", "weak", 0.01)}
	_, err = svc.Chat(context.Background(), chat.ChatParams{Query: "second"})
	require.NoError(t, err)

	turns := history.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Query)
	assert.Equal(t, "second", turns[1].Query)
	assert.Equal(t, chat.RefusalAnswer, turns[1].Answer)
}

func TestChat_TrimsLowRankedChunksOverTokenBudget(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "first", 0.9),
		source("d1", 1, 1, "report.pdf", "second", 0.8),
		source("d1", 2, 1, "report.pdf", "third", 0.7),
	}}
	generator := &fakeGenerator{answer: "answer"}
	// クエリ100 + チャンク100×2 で上限300に到達し、3つ目は入らない
	svc := chat.NewService(&fakeEmbedder{}, idx, generator,
		chat.WithTokenCounter(&fixedCounter{perText: 100}),
		chat.WithMaxContextTokens(300),
	)

	result, err := svc.Chat(context.Background(), chat.ChatParams{Query: "q"})
	require.NoError(t, err)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, 0, result.Sources[0].ChunkID)
	assert.Equal(t, 1, result.Sources[1].ChunkID)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "first")
	assert.Contains(t, generator.prompts[0], "second")
	assert.NotContains(t, generator.prompts[0], "third")
}

func TestChat_EmptyQueryFails(t *testing.T) {
	svc := chat.NewService(&fakeEmbedder{}, &fakeIndex{}, &fakeGenerator{})

	_, err := svc.Chat(context.Background(), chat.ChatParams{})
	require.Error(t, err)
}

func TestChat_ExplicitTopKIsPassedToQuery(t *testing.T) {
	idx := &fakeIndex{results: []index.RetrievedSource{
		source("d1", 0, 1, "report.pdf", "relevant", 0.9),
	}}
	svc := chat.NewService(&fakeEmbedder{}, idx, &fakeGenerator{answer: "answer"})

	_, err := svc.Chat(context.Background(), chat.ChatParams{Query: "q", TopK: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, idx.lastK)
}

func TestBuildAnswerPrompt_IncludesRankOrderAndCitationFormat(t *testing.T) {
	sources := []index.RetrievedSource{
		source("d1", 7, 4, "report.pdf", "revenue text", 0.9),
		{Entry: index.Entry{DocID: "d2", ChunkID: 0, Page: mo.None[int](), Text: "notes text", FileName: "notes.txt"}, Score: 0.5},
	}

	prompt := chat.BuildAnswerPrompt("How did revenue develop?", sources)

	assert.Contains(t, prompt, "[source:<ファイル名> | page <ページ番号> | chunk <チャンクID>]")
	assert.Contains(t, prompt, "How did revenue develop?")
	assert.Contains(t, prompt, chat.RefusalAnswer)

	// ランク順のままコンテキストに並ぶ
	first := strings.Index(prompt, "revenue text")
	second := strings.Index(prompt, "notes text")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)

	// ページ情報がないソースは "-" と表記される
	assert.Contains(t, prompt, "ページ: -")
}
