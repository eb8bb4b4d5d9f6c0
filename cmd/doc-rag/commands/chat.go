package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/chat"
)

// ChatAction は質問への回答を表示するコマンドのアクション
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	topK := cmd.Int("top-k")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Chatter.Chat(ctx, chat.ChatParams{Query: query, TopK: topK})
	if err != nil {
		return fmt.Errorf("回答の生成に失敗: %w", err)
	}

	fmt.Println(result.Answer)
	fmt.Println()

	if len(result.Citations) > 0 {
		fmt.Println("参照:")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "File", "Page", "Chunk", "Score")
		for _, cit := range result.Citations {
			page := "-"
			if p, ok := cit.Page.Get(); ok {
				page = fmt.Sprintf("%d", p)
			}
			score := "-"
			if cit.Source != nil {
				score = fmt.Sprintf("%.3f", cit.Source.Score)
			}
			table.Append(
				fmt.Sprintf("[%d]", cit.Number),
				cit.FileName,
				page,
				fmt.Sprintf("%d", cit.ChunkID),
				score,
			)
		}
		table.Render()
	}
	return nil
}
