// Package extract は形式別のテキスト抽出器を提供する
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jinford/doc-rag/internal/core/document"
)

// TXTExtractor はプレーンテキストファイルの抽出器
// ページ情報は持たない
type TXTExtractor struct{}

var _ document.Extractor = (*TXTExtractor)(nil)

// NewTXTExtractor は新しいTXTExtractorを作成する
func NewTXTExtractor() *TXTExtractor {
	return &TXTExtractor{}
}

// Extract はバイト列をUTF-8テキストとして読み出す
func (e *TXTExtractor) Extract(_ context.Context, data []byte) (*document.ExtractedText, error) {
	if !utf8.Valid(data) {
		return nil, document.NewProcessingError("text file is not valid UTF-8", nil)
	}

	// BOMと改行コードを正規化する
	text := strings.TrimPrefix(string(data), "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	return &document.ExtractedText{Text: text}, nil
}
