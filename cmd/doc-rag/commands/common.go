// Package commands はCLIコマンドの実装を提供する
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/doc-rag/internal/core/chat"
	"github.com/jinford/doc-rag/internal/core/index"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/ingestion/chunk"
	"github.com/jinford/doc-rag/internal/infra/extract"
	"github.com/jinford/doc-rag/internal/infra/memory"
	"github.com/jinford/doc-rag/internal/infra/openai"
	"github.com/jinford/doc-rag/internal/infra/postgres"
	"github.com/jinford/doc-rag/internal/platform/logger"
	"github.com/jinford/doc-rag/pkg/config"
	"github.com/jinford/doc-rag/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB // メモリバックエンドの場合はnil
	Ingester *ingestion.Service
	Chatter  *chat.Service
	PDF      *extract.PDFExtractor
	Logger   *slog.Logger
}

// NewAppContext は設定を読み込み、バックエンドを初期化してAppContextを作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正: %w", err)
	}

	appLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}

	// ストアバックエンドの選択
	var (
		database *db.DB
		idx      index.Index
		catalog  ingestion.Catalog
	)
	switch cfg.StoreBackend {
	case "postgres":
		database, err = db.New(ctx, db.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, database, cfg.OpenAI.EmbeddingDimension); err != nil {
			database.Close()
			return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
		}
		idx = postgres.NewIndex(database, cfg.OpenAI.EmbeddingDimension)
		catalog = postgres.NewCatalog(database)
	default:
		idx = memory.NewIndex(cfg.OpenAI.EmbeddingDimension)
		catalog = memory.NewCatalog()
	}

	embedder := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	generator := openai.NewGenerator(cfg.OpenAI.APIKey,
		openai.WithGenerationModel(cfg.OpenAI.LLMModel),
	)
	counter, err := openai.NewTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("トークンカウンタの初期化に失敗: %w", err)
	}

	pdf := extract.NewPDFExtractor(cfg.ExtractorURL)
	chunker := chunk.New(&chunk.Config{
		Size:    cfg.Retrieval.ChunkSize,
		Overlap: cfg.Retrieval.ChunkOverlap,
	})

	ingester := ingestion.NewService(
		extract.NewRegistry(pdf),
		chunker,
		embedder,
		idx,
		catalog,
		ingestion.WithLogger(appLogger),
	)

	chatter := chat.NewService(embedder, idx, generator,
		chat.WithLogger(appLogger),
		chat.WithTopK(cfg.Retrieval.TopK),
		chat.WithRelevanceThreshold(cfg.Retrieval.RelevanceThreshold),
		chat.WithMaxContextTokens(cfg.Retrieval.MaxContextTokens),
		chat.WithTokenCounter(counter),
		chat.WithHistory(chat.NewHistory()),
	)

	return &AppContext{
		Config:   cfg,
		Database: database,
		Ingester: ingester,
		Chatter:  chatter,
		PDF:      pdf,
		Logger:   appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}
