package document

import "context"

// Extractor は1つのドキュメント形式からテキストを抽出するインターフェース
// 形式の追加はExtractorの実装を1つ増やすことで行い、分岐の追加では行わない
type Extractor interface {
	// Extract はファイルのバイト列から本文テキストとページ範囲を抽出する
	// 抽出に失敗した場合はProcessingErrorを返す
	Extract(ctx context.Context, data []byte) (*ExtractedText, error)
}

// ExtractorRegistry は形式ごとのExtractorを保持するレジストリ
type ExtractorRegistry map[Format]Extractor

// Lookup は指定形式のExtractorを返す
// 登録されていない形式の場合はProcessingErrorを返す
func (r ExtractorRegistry) Lookup(format Format) (Extractor, error) {
	ex, ok := r[format]
	if !ok {
		return nil, NewProcessingError("no extractor registered for format: "+string(format), nil)
	}
	return ex, nil
}
