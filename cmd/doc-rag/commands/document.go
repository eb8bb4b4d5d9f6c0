package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// DocumentListAction は登録済みドキュメントの一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Ingester.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("ドキュメントは登録されていません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Doc ID", "File Name", "Format", "Chunks", "Uploaded At")
	for _, doc := range docs {
		table.Append(
			doc.ID,
			doc.FileName,
			string(doc.Format),
			fmt.Sprintf("%d", doc.ChunkCount),
			doc.UploadedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
	return nil
}

// DocumentDeleteAction はドキュメントを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	docID := cmd.String("id")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Ingester.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}

	fmt.Printf("✓ deleted %s\n", docID)
	return nil
}
