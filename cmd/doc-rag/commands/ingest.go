package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
)

// IngestAction はファイルをインジェストするコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("インジェストするファイルを1つ以上指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}

		result, err := appCtx.Ingester.Ingest(ctx, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("インジェストに失敗 (%s): %w", path, err)
		}

		fmt.Printf("✓ %s\n", result.FileName)
		fmt.Printf("  doc_id: %s\n", result.DocID)
		fmt.Printf("  format: %s\n", result.Format)
		fmt.Printf("  chunks: %d\n", result.ChunksCreated)
		fmt.Printf("  took:   %s\n", result.Duration.Round(time.Millisecond))
	}
	return nil
}
