// Package httpapi はインジェストとチャットのHTTP APIを提供する
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinford/doc-rag/internal/core/chat"
	"github.com/jinford/doc-rag/internal/core/ingestion"
)

const (
	// DefaultMaxUploadSize はアップロードサイズの既定上限（50MB）
	DefaultMaxUploadSize = 50 << 20

	shutdownTimeout = 10 * time.Second
)

// HealthCheck は依存コンポーネントの疎通確認関数
type HealthCheck func(ctx context.Context) error

// Server はHTTP APIサーバ
type Server struct {
	ingester *ingestion.Service
	chatter  *chat.Service
	logger   *slog.Logger

	maxUploadSize int64
	healthChecks  map[string]HealthCheck
}

// ServerOption はServerのオプション設定
type ServerOption func(*Server)

// WithLogger はServerにロガーを設定する
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxUploadSize はアップロードサイズの上限を設定する
func WithMaxUploadSize(size int64) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.maxUploadSize = size
		}
	}
}

// WithHealthCheck はヘルスチェック対象のコンポーネントを登録する
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.healthChecks[name] = check
	}
}

// NewServer は新しいServerを作成する
func NewServer(ingester *ingestion.Service, chatter *chat.Service, opts ...ServerOption) *Server {
	srv := &Server{
		ingester:      ingester,
		chatter:       chatter,
		logger:        slog.Default(),
		maxUploadSize: DefaultMaxUploadSize,
		healthChecks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	return srv
}

// Handler はルーティング済みのHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return s.loggingMiddleware(mux)
}

// Run はHTTPサーバを起動し、ctxのキャンセルでグレースフルに停止する
func (s *Server) Run(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		s.logger.Info("http server stopped")
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// loggingMiddleware はリクエストごとのアクセスログを出力する
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
