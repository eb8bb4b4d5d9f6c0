package citation

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/index"
)

func source(fileName string, page mo.Option[int], chunkID int, score float64) index.RetrievedSource {
	return index.RetrievedSource{
		Entry: index.Entry{
			DocID:    "doc-1",
			ChunkID:  chunkID,
			Text:     "chunk text",
			Page:     page,
			FileName: fileName,
		},
		Score: score,
	}
}

// TestResolveDeduplicatesRepeatedToken は同一トークンの繰り返しが1つの引用にまとまることを確認する
func TestResolveDeduplicatesRepeatedToken(t *testing.T) {
	raw := "Revenue grew 12%. [source:report.pdf | page 4 | chunk 7] Costs fell too. [source:report.pdf | page 4 | chunk 7]"
	sources := []index.RetrievedSource{source("report.pdf", mo.Some(4), 7, 0.91)}

	result := Resolve(raw, sources)

	assert.Equal(t, "Revenue grew 12%. [1] Costs fell too. [1]", result.DisplayText)
	require.Len(t, result.Citations, 1)

	c := result.Citations[0]
	assert.Equal(t, 1, c.Number)
	assert.Equal(t, "report.pdf", c.FileName)
	assert.Equal(t, mo.Some(4), c.Page)
	assert.Equal(t, 7, c.ChunkID)
	require.NotNil(t, c.Source)
	assert.Equal(t, 0.91, c.Source.Score)
}

// TestResolveNumbersByFirstAppearance は番号が初出順に割り当てられることを確認する
func TestResolveNumbersByFirstAppearance(t *testing.T) {
	raw := "B. [source:b.txt | page - | chunk 2] A. [source:a.pdf | page 1 | chunk 0] B again. [source:b.txt | page - | chunk 2]"
	sources := []index.RetrievedSource{
		// 検索スコア順はa.pdfが上位だが、番号は本文中の初出順でなければならない
		source("a.pdf", mo.Some(1), 0, 0.95),
		source("b.txt", mo.None[int](), 2, 0.42),
	}

	result := Resolve(raw, sources)

	assert.Equal(t, "B. [1] A. [2] B again. [1]", result.DisplayText)
	require.Len(t, result.Citations, 2)
	assert.Equal(t, "b.txt", result.Citations[0].FileName)
	assert.Equal(t, "a.pdf", result.Citations[1].FileName)
	assert.Equal(t, 1, result.Citations[0].Number)
	assert.Equal(t, 2, result.Citations[1].Number)
}

// TestResolveDegradedCitation は一致ソースがない引用もnil付きで出力されることを確認する
func TestResolveDegradedCitation(t *testing.T) {
	raw := "Fact. [source:other.pdf | page 9 | chunk 3]"
	sources := []index.RetrievedSource{source("report.pdf", mo.Some(4), 7, 0.91)}

	result := Resolve(raw, sources)

	assert.Equal(t, "Fact. [1]", result.DisplayText)
	require.Len(t, result.Citations, 1)
	assert.Nil(t, result.Citations[0].Source)
}

// TestResolveLeavesMalformedTokens は不正なブラケット表現がそのまま残ることを確認する
func TestResolveLeavesMalformedTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "引用トークンなし", raw: "Just a plain answer with [brackets]."},
		{name: "フィールド欠落", raw: "Fact. [source:report.pdf | chunk 7]"},
		{name: "chunkが数値でない", raw: "Fact. [source:report.pdf | page 4 | chunk x]"},
		{name: "閉じブラケットなし", raw: "Fact. [source:report.pdf | page 4 | chunk 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Resolve(tt.raw, nil)
			assert.Equal(t, tt.raw, result.DisplayText)
			assert.Empty(t, result.Citations)
		})
	}
}

// TestResolveMixedValidAndMalformed は正常トークンのみ置換されることを確認する
func TestResolveMixedValidAndMalformed(t *testing.T) {
	raw := "A. [source:a.pdf | page 1 | chunk 0] B. [source:broken] C. [source:a.pdf | page 2 | chunk 1]"

	result := Resolve(raw, nil)

	assert.Equal(t, "A. [1] B. [source:broken] C. [2]", result.DisplayText)
	require.Len(t, result.Citations, 2)
}

// TestResolveSamePageDifferentChunk はキーが(file, page, chunk)の組であることを確認する
func TestResolveSamePageDifferentChunk(t *testing.T) {
	raw := "[source:r.pdf | page 4 | chunk 7][source:r.pdf | page 4 | chunk 8]"

	result := Resolve(raw, nil)

	assert.Equal(t, "[1][2]", result.DisplayText)
	require.Len(t, result.Citations, 2)
}
