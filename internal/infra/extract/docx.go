package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jinford/doc-rag/internal/core/document"
)

// DOCXExtractor はWordドキュメント（.docx）の抽出器
// word/document.xml の本文テキストを段落単位で取り出す
// ページ区切りはレンダリング時に確定するため、明示的な改ページだけを
// 手がかりにした近似のページ範囲を返す
type DOCXExtractor struct{}

var _ document.Extractor = (*DOCXExtractor)(nil)

// NewDOCXExtractor は新しいDOCXExtractorを作成する
func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

// Extract はdocxのアーカイブから本文テキストとページ範囲を抽出する
func (e *DOCXExtractor) Extract(_ context.Context, data []byte) (*document.ExtractedText, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, document.NewProcessingError("file is not a valid docx archive", err)
	}

	var docXML io.ReadCloser
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			docXML, err = file.Open()
			if err != nil {
				return nil, document.NewProcessingError("failed to open word/document.xml", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, document.NewProcessingError("docx archive has no word/document.xml", nil)
	}
	defer docXML.Close()

	text, pages, err := parseDocumentXML(docXML)
	if err != nil {
		return nil, document.NewProcessingError("failed to parse word/document.xml", err)
	}

	return &document.ExtractedText{Text: text, Pages: pages}, nil
}

// parseDocumentXML はWordML本文を走査してテキストとページ範囲を組み立てる
// 段落（w:p）の終わりで改行を挟み、明示的な改ページ（w:br w:type="page"）
// または lastRenderedPageBreak を見つけるたびにページを進める
func parseDocumentXML(r io.Reader) (string, []document.PageSpan, error) {
	decoder := xml.NewDecoder(r)

	var sb strings.Builder
	var pages []document.PageSpan
	page := 1
	pageStart := 0 // 文字単位のオフセット
	offset := 0
	inText := false

	closePage := func() {
		if offset > pageStart {
			pages = append(pages, document.PageSpan{Page: page, Start: pageStart, End: offset})
		}
	}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}

		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inText = true
			case "br":
				for _, attr := range tok.Attr {
					if attr.Name.Local == "type" && attr.Value == "page" {
						closePage()
						page++
						pageStart = offset
					}
				}
			case "lastRenderedPageBreak":
				closePage()
				page++
				pageStart = offset
			case "tab":
				sb.WriteString("\t")
				offset++
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
				offset++
			}
		case xml.CharData:
			if inText {
				sb.Write(tok)
				offset += utf8.RuneCount(tok)
			}
		}
	}

	closePage()

	text := strings.TrimRight(sb.String(), "\n")

	// ページが1つしか検出できなかった場合はページ情報なしとして扱う
	if len(pages) <= 1 {
		return text, nil, nil
	}

	// 末尾の改行削除でテキストが縮んだ分、最終ページの範囲を詰める
	total := utf8.RuneCountInString(text)
	last := &pages[len(pages)-1]
	if last.End > total {
		last.End = total
	}

	return text, pages, nil
}
