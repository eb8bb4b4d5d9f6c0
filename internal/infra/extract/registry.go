package extract

import "github.com/jinford/doc-rag/internal/core/document"

// NewRegistry は全対応形式の抽出器を登録したレジストリを作成する
// PDF抽出器はヘルスチェックでも使うため呼び出し側が生成して渡す
func NewRegistry(pdf *PDFExtractor) document.ExtractorRegistry {
	return document.ExtractorRegistry{
		document.FormatTXT:  NewTXTExtractor(),
		document.FormatDOCX: NewDOCXExtractor(),
		document.FormatPDF:  pdf,
	}
}
