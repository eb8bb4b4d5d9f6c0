// Package config はアプリケーション設定の読み込みを提供します
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定（STORE_BACKEND=postgresの場合に使用）
	Database DatabaseConfig

	// ストアバックエンド ("memory" または "postgres")
	StoreBackend string

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// 検索・チャンク分割設定
	Retrieval RetrievalConfig

	// HTTPサーバ設定
	HTTP HTTPConfig

	// PDF抽出サイドカーのURL
	ExtractorURL string

	// 自動インジェスト対象の監視ディレクトリ（空なら監視しない）
	WatchDir string

	// ログ出力設定
	Log LogConfig
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" または "text"
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// RetrievalConfig は検索とチャンク分割の設定
type RetrievalConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	TopK               int
	RelevanceThreshold float64
	MaxContextTokens   int
}

// HTTPConfig はHTTPサーバ設定
type HTTPConfig struct {
	Port          int
	MaxUploadSize int64
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:          getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:       getEnvAsInt("CHUNK_OVERLAP", 150),
			TopK:               getEnvAsInt("TOP_K", 5),
			RelevanceThreshold: getEnvAsFloat("RELEVANCE_THRESHOLD", 0.3),
			MaxContextTokens:   getEnvAsInt("MAX_CONTEXT_TOKENS", 6000),
		},
		HTTP: HTTPConfig{
			Port:          getEnvAsInt("HTTP_PORT", 8080),
			MaxUploadSize: int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 50)) << 20,
		},
		ExtractorURL: getEnv("EXTRACTOR_URL", "http://localhost:8081"),
		WatchDir:     getEnv("WATCH_DIR", ""),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate は設定の整合性を確認します
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.StoreBackend != "memory" && c.StoreBackend != "postgres" {
		return fmt.Errorf("STORE_BACKEND must be \"memory\" or \"postgres\", got %q", c.StoreBackend)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
