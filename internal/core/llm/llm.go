// Package llm は外部の埋め込み・テキスト生成プロバイダとの境界契約を定義する
package llm

import "context"

// EmbedMode は埋め込みの用途を表す
// 一部のプロバイダはクエリと文書で異なるエンコードを行うため、呼び出し側が用途を明示する
type EmbedMode string

const (
	// EmbedModeDocument は文書（チャンク）の埋め込み
	EmbedModeDocument EmbedMode = "document"
	// EmbedModeQuery は検索クエリの埋め込み
	EmbedModeQuery EmbedMode = "query"
)

// Embedder はテキストを固定次元のベクトルに変換するインターフェース
type Embedder interface {
	// Embed は複数テキストのEmbeddingを位置を揃えて生成する
	// バッチサイズがMaxBatchSize()を超える場合はエラーを返す
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int

	// MaxBatchSize は1回のAPI呼び出しで処理できる最大テキスト数を返す
	MaxBatchSize() int
}

// Generator は文脈付きプロンプトから回答テキストを生成するインターフェース
type Generator interface {
	// Generate はプロンプトに対する回答を生成する
	Generate(ctx context.Context, prompt string) (string, error)
}
