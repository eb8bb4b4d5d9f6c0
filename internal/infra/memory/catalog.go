package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jinford/doc-rag/internal/core/document"
	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Catalog はインメモリのドキュメントカタログ実装
// プロセス再起動で内容は失われる
type Catalog struct {
	mu   sync.RWMutex
	docs map[string]document.Document
}

var _ ingestion.Catalog = (*Catalog)(nil)

// NewCatalog は新しいCatalogを作成する
func NewCatalog() *Catalog {
	return &Catalog{docs: make(map[string]document.Document)}
}

// Save はカタログエントリを保存する
func (c *Catalog) Save(_ context.Context, doc document.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.ID] = doc
	return nil
}

// Delete はカタログエントリを削除する（冪等）
func (c *Catalog) Delete(_ context.Context, docID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, docID)
	return nil
}

// Get はDocIDでカタログエントリを取得する
// 見つからない場合は (nil, nil) を返す
func (c *Catalog) Get(_ context.Context, docID string) (*document.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if doc, ok := c.docs[docID]; ok {
		return &doc, nil
	}
	return nil, nil
}

// List は全エントリをファイル名昇順で返す
func (c *Catalog) List(_ context.Context) ([]document.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := make([]document.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].FileName != docs[j].FileName {
			return docs[i].FileName < docs[j].FileName
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}
