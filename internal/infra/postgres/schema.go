// Package postgres はPostgreSQL + pgvectorによる永続化アダプターを提供する
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/doc-rag/pkg/db"
)

// schemaStatements はスキーマ初期化のDDL
// embeddingの次元数は接続ごとの設定で決まるためプレースホルダにしている
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS documents (
		doc_id      TEXT PRIMARY KEY,
		file_name   TEXT NOT NULL,
		format      TEXT NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL,
		chunk_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		doc_id    TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		chunk_id  INTEGER NOT NULL,
		embedding VECTOR(%d) NOT NULL,
		text      TEXT NOT NULL,
		page      INTEGER,
		file_name TEXT NOT NULL,
		PRIMARY KEY (doc_id, chunk_id)
	)`,
}

// EnsureSchema は必要なテーブルと拡張を作成する
// 既に存在する場合は何もしない
func EnsureSchema(ctx context.Context, database *db.DB, dimension int) error {
	for _, stmt := range schemaStatements {
		sql := stmt
		if strings.Contains(stmt, "%d") {
			sql = fmt.Sprintf(stmt, dimension)
		}
		if _, err := database.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
