package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/cmd/doc-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "doc-rag",
		Usage: "ドキュメントQA基盤（インジェスト・検索・引用付き回答生成）",
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "ファイルをインジェストしてインデックスに登録",
				ArgsUsage: "<file> [<file>...]",
				Flags:     []cli.Flag{envFlag},
				Action:    commands.IngestAction,
			},
			{
				Name:  "chat",
				Usage: "質問に対して引用付きの回答を生成",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "query",
						Usage:    "質問文",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "取得する関連チャンク数（0なら設定値を使用）",
					},
				},
				Action: commands.ChatAction,
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "登録済みドキュメントの一覧を表示",
						Flags:  []cli.Flag{envFlag},
						Action: commands.DocumentListAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントと全チャンクを削除",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: commands.DocumentDeleteAction,
					},
				},
			},
			{
				Name:   "server",
				Usage:  "HTTP APIサーバを起動",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ServerAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
