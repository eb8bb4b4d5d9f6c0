package document

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/mo"
)

// Format はアップロード可能なドキュメント形式を表す
type Format string

const (
	// FormatPDF はPDFドキュメント
	FormatPDF Format = "pdf"
	// FormatDOCX はWordドキュメント
	FormatDOCX Format = "docx"
	// FormatTXT はプレーンテキスト
	FormatTXT Format = "txt"
)

// ParseFormat はファイル名の拡張子からFormatを判定する
// 対応していない拡張子の場合はProcessingErrorを返す
func ParseFormat(fileName string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch ext {
	case "pdf":
		return FormatPDF, nil
	case "docx", "doc":
		return FormatDOCX, nil
	case "txt":
		return FormatTXT, nil
	default:
		return "", NewProcessingError(fmt.Sprintf("unsupported file format: %q", ext), nil)
	}
}

// Document はインジェスト済みドキュメントのカタログエントリを表す
type Document struct {
	ID         string    // インジェスト時に生成されるUUID
	FileName   string    // アップロード時のファイル名
	Format     Format    // ドキュメント形式
	UploadedAt time.Time // アップロード時刻
	ChunkCount int       // 作成されたチャンク数
}

// Chunk はドキュメントから切り出された埋め込み・検索の最小単位
// チャンクはドキュメントに排他的に所有され、作成後は変更されない
type Chunk struct {
	DocID       string         // 所有ドキュメントのID
	ChunkID     int            // ドキュメント内で0起点の連番
	Page        mo.Option[int] // ページ番号（ページ概念のない形式ではAbsent）
	Text        string         // チャンク本文
	StartOffset int            // 抽出テキスト内の開始位置（文字単位）
	EndOffset   int            // 抽出テキスト内の終了位置（文字単位、排他的）
}

// PageSpan は抽出テキスト内でのページの範囲を表す
// Start/Endは文字単位のオフセットで、[Start, End) の半開区間
type PageSpan struct {
	Page  int
	Start int
	End   int
}

// ExtractedText は形式別抽出器の出力
// Pagesが空の場合、ページ情報を持たない形式として扱う
type ExtractedText struct {
	Text  string
	Pages []PageSpan
}
