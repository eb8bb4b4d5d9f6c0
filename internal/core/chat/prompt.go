package chat

import (
	"fmt"
	"strings"

	"github.com/jinford/doc-rag/internal/core/index"
)

// RefusalAnswer はコンテキストから回答できない場合の定型応答
const RefusalAnswer = "アップロードされたドキュメントからはこの質問に回答できる情報が見つかりませんでした。質問を具体的にするか、関連するドキュメントをアップロードしてください。"

// NoDocumentsAnswer はインデックスが空の場合の定型応答
const NoDocumentsAnswer = "ナレッジベースにドキュメントがまだ登録されていません。まずドキュメントをアップロードしてください。"

// BuildAnswerPrompt はRAG質問応答用のプロンプトを構築する
// 検索結果は取得時のランク順のままコンテキストに並べる
func BuildAnswerPrompt(query string, sources []index.RetrievedSource) string {
	var sb strings.Builder

	sb.WriteString("あなたはアップロードされたドキュメントに基づいて質問に回答するアシスタントです。\n\n")

	sb.WriteString("## 回答のルール\n")
	sb.WriteString("- 以下のコンテキストに含まれる情報のみを使用して回答してください\n")
	sb.WriteString("- コンテキストから引用した事実の直後には、必ず次の形式で出典トークンを付けてください: [source:<ファイル名> | page <ページ番号> | chunk <チャンクID>]\n")
	sb.WriteString("- ページ番号がないソースは page - と表記してください\n")
	sb.WriteString("- コンテキストに回答が含まれない場合は、推測せず次の一文だけを返してください: " + RefusalAnswer + "\n")
	sb.WriteString("- 外部知識や仮定を使ってはいけません\n\n")

	sb.WriteString("## コンテキスト\n")
	for i, src := range sources {
		sb.WriteString(fmt.Sprintf("### [出典 %d] (ファイル: %s, ページ: %s, チャンク: %d, スコア: %.3f)\n",
			i+1, src.FileName, formatPage(src), src.ChunkID, src.Score))
		sb.WriteString(src.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## ユーザーの質問\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("## 回答（出典トークンを忘れずに）\n")

	return sb.String()
}

// formatPage はページ番号を表示用に整形する（ページ情報がなければ "-"）
func formatPage(src index.RetrievedSource) string {
	if page, ok := src.Page.Get(); ok {
		return fmt.Sprintf("%d", page)
	}
	return "-"
}
