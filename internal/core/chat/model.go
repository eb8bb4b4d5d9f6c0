// Package chat は検索で裏付けられた質問応答のユースケースを提供する
package chat

import (
	"sync"
	"time"

	"github.com/jinford/doc-rag/internal/core/citation"
	"github.com/jinford/doc-rag/internal/core/index"
)

// ChatParams はチャット要求のパラメータ
type ChatParams struct {
	// Query は自然言語の質問
	Query string
	// TopK は取得する関連チャンク数（0以下はサービスのデフォルト値を使う）
	TopK int
}

// ChatResult はチャット応答の結果
type ChatResult struct {
	// Answer は引用番号付きの回答テキスト
	Answer string
	// Citations は出現順に採番された引用のリスト
	Citations []citation.Citation
	// Sources は生成に使われた検索結果（スコア降順）
	Sources []index.RetrievedSource
	// Refused はコンテキスト不足で定型応答を返したかどうか
	Refused bool
}

// ChatTurn は完了したチャット1往復の記録
// 生成に失敗したターンは記録されない
type ChatTurn struct {
	Query     string
	Answer    string
	Sources   []index.RetrievedSource
	Timestamp time.Time
}

// History はチャットターンのインメモリ履歴
type History struct {
	mu    sync.Mutex
	turns []ChatTurn
}

// NewHistory は新しいHistoryを作成する
func NewHistory() *History {
	return &History{}
}

// Append はターンを履歴の末尾に追加する
func (h *History) Append(turn ChatTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Turns は記録済みターンのコピーを返す
func (h *History) Turns() []ChatTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := make([]ChatTurn, len(h.turns))
	copy(turns, h.turns)
	return turns
}
