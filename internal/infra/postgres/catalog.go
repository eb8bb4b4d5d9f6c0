package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jinford/doc-rag/internal/core/document"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/pkg/db"
)

// Catalog は ingestion.Catalog を実装するPostgreSQLリポジトリ
type Catalog struct {
	db *db.DB
}

var _ ingestion.Catalog = (*Catalog)(nil)

// NewCatalog は新しいCatalogを作成する
func NewCatalog(database *db.DB) *Catalog {
	return &Catalog{db: database}
}

// Save はカタログエントリを保存する
func (r *Catalog) Save(ctx context.Context, doc document.Document) error {
	const saveSQL = `
		INSERT INTO documents (doc_id, file_name, format, uploaded_at, chunk_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_id) DO UPDATE SET
			file_name   = EXCLUDED.file_name,
			format      = EXCLUDED.format,
			uploaded_at = EXCLUDED.uploaded_at,
			chunk_count = EXCLUDED.chunk_count`

	_, err := r.db.Pool.Exec(ctx, saveSQL,
		doc.ID, doc.FileName, string(doc.Format), doc.UploadedAt, doc.ChunkCount)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Delete はカタログエントリを削除する（冪等）
// ON DELETE CASCADE により配下のチャンク行も同時に消える
func (r *Catalog) Delete(ctx context.Context, docID string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Get はDocIDでカタログエントリを取得する
// 見つからない場合は (nil, nil) を返す
func (r *Catalog) Get(ctx context.Context, docID string) (*document.Document, error) {
	const getSQL = `
		SELECT doc_id, file_name, format, uploaded_at, chunk_count
		FROM documents
		WHERE doc_id = $1`

	var (
		doc    document.Document
		format string
	)
	err := r.db.Pool.QueryRow(ctx, getSQL, docID).
		Scan(&doc.ID, &doc.FileName, &format, &doc.UploadedAt, &doc.ChunkCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Format = document.Format(format)
	return &doc, nil
}

// List は全エントリをファイル名昇順で返す
func (r *Catalog) List(ctx context.Context) ([]document.Document, error) {
	const listSQL = `
		SELECT doc_id, file_name, format, uploaded_at, chunk_count
		FROM documents
		ORDER BY file_name, doc_id`

	rows, err := r.db.Pool.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var (
			doc    document.Document
			format string
		)
		if err := rows.Scan(&doc.ID, &doc.FileName, &format, &doc.UploadedAt, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc.Format = document.Format(format)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document rows: %w", err)
	}
	return docs, nil
}
