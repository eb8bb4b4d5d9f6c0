// Package chunk はドキュメント本文のチャンク分割を提供する
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/document"
)

const (
	// DefaultSize はチャンクの最大文字数
	DefaultSize = 1000
	// DefaultOverlap は隣接チャンク間で重複させる文字数
	DefaultOverlap = 150
	// DefaultBoundaryWindow は境界探索をチャンク末尾から遡る最大文字数
	DefaultBoundaryWindow = 300
)

// DefaultSeparators は境界探索に使う区切り文字列（優先順）
// 段落境界を最優先し、見つからなければ改行・文末に後退する
var DefaultSeparators = []string{"\n\n", "\n", "。", ". "}

// Config はチャンク分割の設定
// 文字数はトークン数ではなく文字（rune）単位で数える
type Config struct {
	Size           int      // チャンクの最大文字数
	Overlap        int      // 隣接チャンクの重複文字数
	BoundaryWindow int      // 境界探索幅
	Separators     []string // 境界候補（優先順）
}

// DefaultConfig はデフォルトのチャンク設定を返す
func DefaultConfig() *Config {
	return &Config{
		Size:           DefaultSize,
		Overlap:        DefaultOverlap,
		BoundaryWindow: DefaultBoundaryWindow,
		Separators:     DefaultSeparators,
	}
}

// Chunker はテキストを重複付きの有界セグメントに分割する
// 同一の入力と設定に対して常に同一の境界とチャンクIDを生成する
type Chunker struct {
	cfg Config
}

// New は新しいChunkerを作成する
func New(cfg *Config) *Chunker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = DefaultOverlap
	}
	if c.BoundaryWindow <= 0 || c.BoundaryWindow > c.Size {
		c.BoundaryWindow = DefaultBoundaryWindow
	}
	if len(c.Separators) == 0 {
		c.Separators = DefaultSeparators
	}
	return &Chunker{cfg: c}
}

// Chunk はテキストをチャンク列に分割する
// pagesはページ番号の文字範囲（rune単位）。空の場合、全チャンクのページはAbsentになる
// 空テキストの場合はProcessingErrorを返す
func (c *Chunker) Chunk(docID, text string, pages []document.PageSpan) ([]document.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, document.NewProcessingError("no text could be extracted from the document", nil)
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []document.Chunk
	start := 0
	for id := 0; ; id++ {
		end := start + c.cfg.Size
		if end >= n {
			end = n
		} else {
			end = c.findBoundary(runes, start, end)
		}

		chunks = append(chunks, document.Chunk{
			DocID:       docID,
			ChunkID:     id,
			Page:        pageFor(pages, start),
			Text:        string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})

		if end >= n {
			break
		}

		// 末尾Overlap文字を次チャンクの先頭に持ち越す
		next := end - c.cfg.Overlap
		if next <= start {
			// 前進を保証する（Overlapがチャンク長以上になった場合）
			next = end
		}
		start = next
	}

	return chunks, nil
}

// findBoundary は [start, end) の末尾BoundaryWindow文字内で最良の境界を探す
// 区切りが見つからない場合はendをそのまま返す（ハードカット）
func (c *Chunker) findBoundary(runes []rune, start, end int) int {
	minCut := end - c.cfg.BoundaryWindow
	if minCut <= start {
		minCut = start + 1
	}

	window := string(runes[minCut:end])
	for _, sep := range c.cfg.Separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// 区切りの直後で切る
		cut := minCut + utf8.RuneCountInString(window[:idx]) + utf8.RuneCountInString(sep)
		if cut > minCut && cut <= end {
			return cut
		}
	}
	return end
}

// pageFor はチャンク開始オフセットを含むページ番号を返す
func pageFor(pages []document.PageSpan, offset int) mo.Option[int] {
	for _, p := range pages {
		if offset >= p.Start && offset < p.End {
			return mo.Some(p.Page)
		}
	}
	return mo.None[int]()
}
