package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/doc-rag/internal/interface/httpapi"
	"github.com/jinford/doc-rag/internal/platform/watcher"
)

// ServerAction はHTTP APIサーバを起動するコマンドのアクション
// WATCH_DIRが設定されていればディレクトリ監視も同時に動かす
func ServerAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	opts := []httpapi.ServerOption{
		httpapi.WithLogger(appCtx.Logger),
		httpapi.WithMaxUploadSize(appCtx.Config.HTTP.MaxUploadSize),
		httpapi.WithHealthCheck("pdf_extractor", func(ctx context.Context) error {
			if !appCtx.PDF.Healthy(ctx) {
				return fmt.Errorf("pdf extraction sidecar is not responding")
			}
			return nil
		}),
	}
	if appCtx.Database != nil {
		opts = append(opts, httpapi.WithHealthCheck("database", func(ctx context.Context) error {
			return appCtx.Database.Pool.Ping(ctx)
		}))
	}

	server := httpapi.NewServer(appCtx.Ingester, appCtx.Chatter, opts...)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx, appCtx.Config.HTTP.Port)
	})
	if dir := appCtx.Config.WatchDir; dir != "" {
		group.Go(func() error {
			w := watcher.New(appCtx.Ingester, appCtx.Logger)
			if err := w.Run(groupCtx, dir); err != nil && groupCtx.Err() == nil {
				return err
			}
			return nil
		})
	}
	return group.Wait()
}
