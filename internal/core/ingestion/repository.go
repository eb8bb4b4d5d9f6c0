package ingestion

import (
	"context"

	"github.com/jinford/doc-rag/internal/core/document"
)

// Catalog はドキュメントカタログの永続化契約
// インジェスト成功ごとに1エントリを保持する
type Catalog interface {
	// Save はカタログエントリを保存する
	Save(ctx context.Context, doc document.Document) error

	// Delete はカタログエントリを削除する
	// 存在しないDocIDの削除は成功扱い
	Delete(ctx context.Context, docID string) error

	// Get はDocIDでカタログエントリを取得する
	// 見つからない場合は (nil, nil) を返す
	Get(ctx context.Context, docID string) (*document.Document, error)

	// List は全エントリをファイル名昇順で返す
	List(ctx context.Context) ([]document.Document, error)
}
