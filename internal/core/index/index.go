// Package index はベクトルインデックスの契約と検索結果モデルを定義する
package index

import (
	"context"

	"github.com/samber/mo"
)

// Entry はインデックスに永続化されるタプルを表す
// 生存しているチャンクと1対1に対応する
type Entry struct {
	DocID    string
	ChunkID  int
	Vector   []float32
	Text     string
	Page     mo.Option[int]
	FileName string
}

// RetrievedSource は類似検索の結果1件を表す
// Scoreはコサイン類似度で、スコア降順・同点時は (DocID, ChunkID) 昇順に並ぶ
type RetrievedSource struct {
	Entry
	Score float64
}

// Index はベクトルインデックスへの読み書き契約
type Index interface {
	// Upsert はドキュメントのエントリ群を保存する
	// 同一 (DocID, ChunkID) の既存エントリは上書きされる
	Upsert(ctx context.Context, docID string, entries []Entry) error

	// Query はクエリベクトルとの類似度上位k件を返す
	// kは正であること。格納件数がk未満の場合は全件を返す
	Query(ctx context.Context, vector []float32, k int) ([]RetrievedSource, error)

	// Delete はドキュメントの全エントリを削除する
	// 並行するQueryに対してアトミックであり、存在しないDocIDの削除は成功扱い
	Delete(ctx context.Context, docID string) error
}

// Less はタイブレーク込みの順序を返す
// 検索結果の決定的な並びに使う: スコア降順、(DocID, ChunkID) 昇順
func Less(a, b RetrievedSource) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return a.ChunkID < b.ChunkID
}
