// Package ingestion はドキュメントのインジェストパイプラインを提供する
// 1アップロードの処理は 抽出 → チャンク分割 → 埋め込み → インデックス保存 の順に直列で進む
package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/document"
	"github.com/jinford/doc-rag/internal/core/index"
	"github.com/jinford/doc-rag/internal/core/ingestion/chunk"
	"github.com/jinford/doc-rag/internal/core/llm"
)

// IngestResult はインジェスト処理の結果
type IngestResult struct {
	DocID         string
	FileName      string
	Format        document.Format
	ChunksCreated int
	UploadedAt    time.Time
	Duration      time.Duration
}

// Service はインジェストのユースケースを提供する
// 個々のアップロード内は直列だが、異なるアップロードは互いにブロックせず並行実行できる
type Service struct {
	extractors document.ExtractorRegistry
	chunker    *chunk.Chunker
	embedder   llm.Embedder
	idx        index.Index
	catalog    Catalog
	locks      *docLocks
	logger     *slog.Logger
}

// ServiceOption はServiceのオプション設定
type ServiceOption func(*Service)

// WithLogger はServiceにロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(
	extractors document.ExtractorRegistry,
	chunker *chunk.Chunker,
	embedder llm.Embedder,
	idx index.Index,
	catalog Catalog,
	opts ...ServiceOption,
) *Service {
	svc := &Service{
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		idx:        idx,
		catalog:    catalog,
		locks:      newDocLocks(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Ingest はアップロードされたファイルを処理してインデックスに登録する
// 途中のどの段階で失敗しても部分的な書き込みは残らない
func (s *Service) Ingest(ctx context.Context, fileName string, data []byte) (*IngestResult, error) {
	startTime := time.Now()

	if len(data) == 0 {
		return nil, document.NewProcessingError("file is empty", nil)
	}

	format, err := document.ParseFormat(fileName)
	if err != nil {
		return nil, err
	}

	extractor, err := s.extractors.Lookup(format)
	if err != nil {
		return nil, err
	}

	extracted, err := extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	docID := uuid.New().String()

	chunks, err := s.chunker.Chunk(docID, extracted.Text, extracted.Pages)
	if err != nil {
		return nil, err
	}

	s.logger.Info("document chunked",
		"docID", docID,
		"fileName", fileName,
		"format", string(format),
		"chunks", len(chunks),
	)

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]index.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = index.Entry{
			DocID:    ch.DocID,
			ChunkID:  ch.ChunkID,
			Vector:   vectors[i],
			Text:     ch.Text,
			Page:     ch.Page,
			FileName: fileName,
		}
	}

	uploadedAt := time.Now()
	doc := document.Document{
		ID:         docID,
		FileName:   fileName,
		Format:     format,
		UploadedAt: uploadedAt,
		ChunkCount: len(chunks),
	}

	// 同一DocIDのupsertとdeleteを直列化する
	unlock := s.locks.Lock(docID)
	defer unlock()

	// チャンクはドキュメント行を親に参照するため、カタログ登録を先に行う
	if err := s.catalog.Save(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.idx.Upsert(ctx, docID, entries); err != nil {
		// チャンクを持たないドキュメント行を残さないよう巻き戻す
		if delErr := s.catalog.Delete(ctx, docID); delErr != nil {
			s.logger.Warn("failed to roll back catalog entry after index error",
				"docID", docID, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("document ingested",
		"docID", docID,
		"fileName", fileName,
		"chunks", len(chunks),
		"duration", time.Since(startTime).String(),
	)

	return &IngestResult{
		DocID:         docID,
		FileName:      fileName,
		Format:        format,
		ChunksCreated: len(chunks),
		UploadedAt:    uploadedAt,
		Duration:      time.Since(startTime),
	}, nil
}

// embedChunks はチャンク本文をバッチに分けて埋め込みに変換する
func (s *Service) embedChunks(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}

		batch, err := s.embedder.Embed(ctx, texts, llm.EmbedModeDocument)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// DeleteDocument はドキュメントとその全チャンクを削除する
// 存在しないDocIDに対しても成功を返す（冪等）
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	unlock := s.locks.Lock(docID)
	defer unlock()

	if err := s.idx.Delete(ctx, docID); err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, docID); err != nil {
		return err
	}

	s.logger.Info("document deleted", "docID", docID)
	return nil
}

// ListDocuments はカタログの全ドキュメントを返す
func (s *Service) ListDocuments(ctx context.Context) ([]document.Document, error) {
	return s.catalog.List(ctx)
}
