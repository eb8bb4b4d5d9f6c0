package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jinford/doc-rag/internal/core/document"
)

const (
	// DefaultSidecarURL はPDF抽出サイドカーの既定URL
	DefaultSidecarURL = "http://localhost:8081"

	// DefaultSidecarTimeout はサイドカー呼び出しのタイムアウト
	DefaultSidecarTimeout = 60 * time.Second
)

// PDFExtractor はHTTPサイドカー経由でPDFからテキストを抽出する
// サイドカーはページ単位のテキストをJSONで返す
type PDFExtractor struct {
	serviceURL string
	client     *http.Client
}

var _ document.Extractor = (*PDFExtractor)(nil)

// PDFExtractorOption はPDFExtractorのオプション設定
type PDFExtractorOption func(*PDFExtractor)

// WithSidecarTimeout はサイドカー呼び出しのタイムアウトを設定する
func WithSidecarTimeout(timeout time.Duration) PDFExtractorOption {
	return func(e *PDFExtractor) {
		e.client.Timeout = timeout
	}
}

// NewPDFExtractor は新しいPDFExtractorを作成する
func NewPDFExtractor(serviceURL string, opts ...PDFExtractorOption) *PDFExtractor {
	if serviceURL == "" {
		serviceURL = DefaultSidecarURL
	}
	ex := &PDFExtractor{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     &http.Client{Timeout: DefaultSidecarTimeout},
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// extractResponse はサイドカーのレスポンス形式
type extractResponse struct {
	Pages []struct {
		Page int    `json:"page"`
		Text string `json:"text"`
	} `json:"pages"`
	Error string `json:"error,omitempty"`
}

// Extract はPDFのバイト列をサイドカーに渡し、ページ範囲付きのテキストを得る
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (*document.ExtractedText, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return nil, document.NewProcessingError("failed to create extraction request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, document.NewProcessingError("pdf extraction service unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, document.NewProcessingError("failed to read extraction response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, document.NewProcessingError(
			fmt.Sprintf("pdf extraction service returned status %d", resp.StatusCode), nil)
	}

	var result extractResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, document.NewProcessingError("failed to decode extraction response", err)
	}
	if result.Error != "" {
		return nil, document.NewProcessingError("pdf extraction failed: "+result.Error, nil)
	}

	// ページテキストを連結し、文字単位のページ範囲を組み立てる
	var sb strings.Builder
	pages := make([]document.PageSpan, 0, len(result.Pages))
	offset := 0
	for i, page := range result.Pages {
		if i > 0 {
			sb.WriteString("\n\n")
			offset += 2
		}
		length := utf8.RuneCountInString(page.Text)
		pages = append(pages, document.PageSpan{
			Page:  page.Page,
			Start: offset,
			End:   offset + length,
		})
		sb.WriteString(page.Text)
		offset += length
	}

	return &document.ExtractedText{Text: sb.String(), Pages: pages}, nil
}

// Healthy はサイドカーが応答可能かどうかを返す
func (e *PDFExtractor) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serviceURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
