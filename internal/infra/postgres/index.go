package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/index"
	"github.com/jinford/doc-rag/pkg/db"
)

// Index は core/index.Index を実装するPostgreSQLリポジトリ
// 削除とupsertはトランザクションで行い、実行中のクエリは
// ドキュメントの削除前か削除後のどちらかの状態だけを観測する
type Index struct {
	db        *db.DB
	dimension int
}

var _ index.Index = (*Index)(nil)

// NewIndex は新しいIndexを作成する
func NewIndex(database *db.DB, dimension int) *Index {
	return &Index{db: database, dimension: dimension}
}

// Upsert はドキュメントのエントリ群を1トランザクションで保存する
// 同一 (doc_id, chunk_id) の既存行は上書きされる
func (r *Index) Upsert(ctx context.Context, docID string, entries []index.Entry) error {
	for _, entry := range entries {
		if len(entry.Vector) != r.dimension {
			return index.NewStoreError(
				fmt.Sprintf("vector dimension mismatch: got %d, want %d", len(entry.Vector), r.dimension), nil)
		}
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return index.NewStoreError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	const upsertSQL = `
		INSERT INTO chunks (doc_id, chunk_id, embedding, text, page, file_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id, chunk_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text      = EXCLUDED.text,
			page      = EXCLUDED.page,
			file_name = EXCLUDED.file_name`

	for _, entry := range entries {
		var page *int
		if p, ok := entry.Page.Get(); ok {
			page = &p
		}
		_, err := tx.Exec(ctx, upsertSQL,
			entry.DocID,
			entry.ChunkID,
			pgvector.NewVector(entry.Vector),
			entry.Text,
			page,
			entry.FileName,
		)
		if err != nil {
			return index.NewStoreError("failed to upsert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return index.NewStoreError("failed to commit upsert transaction", err)
	}
	return nil
}

// Query はコサイン類似度の上位k件を返す
// 同点は (doc_id, chunk_id) 昇順で安定に並ぶ
func (r *Index) Query(ctx context.Context, vector []float32, k int) ([]index.RetrievedSource, error) {
	if k <= 0 {
		return nil, index.NewStoreError(fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	if len(vector) != r.dimension {
		return nil, index.NewStoreError(
			fmt.Sprintf("query vector dimension mismatch: got %d, want %d", len(vector), r.dimension), nil)
	}

	const querySQL = `
		SELECT doc_id, chunk_id, text, page, file_name,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1, doc_id, chunk_id
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, querySQL, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, index.NewStoreError("failed to query chunks", err)
	}
	defer rows.Close()

	results := make([]index.RetrievedSource, 0, k)
	for rows.Next() {
		var (
			src  index.RetrievedSource
			page *int
		)
		if err := rows.Scan(&src.DocID, &src.ChunkID, &src.Text, &page, &src.FileName, &src.Score); err != nil {
			return nil, index.NewStoreError("failed to scan chunk row", err)
		}
		if page != nil {
			src.Page = mo.Some(*page)
		} else {
			src.Page = mo.None[int]()
		}
		results = append(results, src)
	}
	if err := rows.Err(); err != nil {
		return nil, index.NewStoreError("failed to read chunk rows", err)
	}
	return results, nil
}

// Delete はドキュメントの全エントリを削除する
// 存在しないdoc_idの削除も成功扱い（冪等）
func (r *Index) Delete(ctx context.Context, docID string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID); err != nil {
		return index.NewStoreError("failed to delete chunks", err)
	}
	return nil
}
