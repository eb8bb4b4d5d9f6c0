// Package memory はプロセス内ベクトルインデックスを提供する
// 小規模デプロイおよびテストで postgres 実装の代わりに使う
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jinford/doc-rag/internal/core/index"
)

// Index は総当たりコサイン類似度による In-Memory ベクトルインデックス
// ドキュメント単位のバケットで保持するため、削除は並行するQueryに対してアトミックになる
type Index struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]map[int]index.Entry
}

// NewIndex は新しいIndexを作成する
// dimensionは全エントリに要求されるベクトル次元数
func NewIndex(dimension int) *Index {
	return &Index{
		dimension: dimension,
		docs:      make(map[string]map[int]index.Entry),
	}
}

var _ index.Index = (*Index)(nil)

// Upsert はドキュメントのエントリ群を保存する
// 同一 (DocID, ChunkID) の既存エントリは上書きされる
func (x *Index) Upsert(ctx context.Context, docID string, entries []index.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != x.dimension {
			return index.NewStoreError(
				fmt.Sprintf("vector dimension mismatch: got %d, want %d", len(e.Vector), x.dimension), nil)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	bucket, ok := x.docs[docID]
	if !ok {
		bucket = make(map[int]index.Entry, len(entries))
		x.docs[docID] = bucket
	}
	for _, e := range entries {
		bucket[e.ChunkID] = e
	}
	return nil
}

// Query はコサイン類似度の上位k件を返す
// 同点は (DocID, ChunkID) 昇順で安定に解決される
func (x *Index) Query(ctx context.Context, vector []float32, k int) ([]index.RetrievedSource, error) {
	if k <= 0 {
		return nil, index.NewStoreError(fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	if len(vector) != x.dimension {
		return nil, index.NewStoreError(
			fmt.Sprintf("query vector dimension mismatch: got %d, want %d", len(vector), x.dimension), nil)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []index.RetrievedSource
	for _, bucket := range x.docs {
		for _, e := range bucket {
			results = append(results, index.RetrievedSource{
				Entry: e,
				Score: cosine(vector, e.Vector),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return index.Less(results[i], results[j])
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete はドキュメントの全エントリを削除する
// バケットごと取り除くため部分削除状態は観測されない。存在しないDocIDは成功扱い
func (x *Index) Delete(ctx context.Context, docID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	delete(x.docs, docID)
	return nil
}

// cosine は2つのベクトルのコサイン類似度を計算する
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
