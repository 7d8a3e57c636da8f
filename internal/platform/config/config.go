package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 生成）
	OpenAI OpenAIConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// ワーカープール設定
	Workers WorkersConfig

	// ベクトル検索設定
	Vector VectorConfig

	// URLソース取得設定
	Web WebConfig

	// ログ設定
	Log LogConfig
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

// OpenAIConfig はOpenAI API設定（Embeddings + LLM）
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // 互換APIを使う場合のみ指定
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
	LLMTemperature     float64
	LLMTimeoutSeconds  int
}

// ChunkingConfig はチャンク分割の設定
type ChunkingConfig struct {
	TargetTokens   int
	OverlapTokens  int
	MinTokens      int
	MaxInputTokens int
}

// WorkersConfig は非同期処理のワーカー数とキュー長
type WorkersConfig struct {
	IndexWorkers   int
	IndexQueueSize int
	JobWorkers     int
	JobQueueSize   int
}

// VectorConfig はpgvector検索の設定
type VectorConfig struct {
	EfSearch int // hnsw.ef_search (1-1000)
}

// WebConfig はURLからソースを取り込む際の設定
type WebConfig struct {
	FetchTimeoutSeconds int
	MaxBodyBytes        int64
	UserAgent           string
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "studyrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "studyrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			LLMTemperature:     getEnvAsFloat("OPENAI_LLM_TEMPERATURE", 0.3),
			LLMTimeoutSeconds:  getEnvAsInt("OPENAI_LLM_TIMEOUT_SECONDS", 60),
		},
		Chunking: ChunkingConfig{
			TargetTokens:   getEnvAsInt("CHUNK_TARGET_TOKENS", 500),
			OverlapTokens:  getEnvAsInt("CHUNK_OVERLAP_TOKENS", 100),
			MinTokens:      getEnvAsInt("CHUNK_MIN_TOKENS", 5),
			MaxInputTokens: getEnvAsInt("CHUNK_MAX_INPUT_TOKENS", 10000),
		},
		Workers: WorkersConfig{
			IndexWorkers:   getEnvAsInt("INDEX_WORKERS", 2),
			IndexQueueSize: getEnvAsInt("INDEX_QUEUE_SIZE", 64),
			JobWorkers:     getEnvAsInt("JOB_WORKERS", 4),
			JobQueueSize:   getEnvAsInt("JOB_QUEUE_SIZE", 64),
		},
		Vector: VectorConfig{
			EfSearch: getEnvAsInt("VECTOR_EF_SEARCH", 200),
		},
		Web: WebConfig{
			FetchTimeoutSeconds: getEnvAsInt("WEB_FETCH_TIMEOUT_SECONDS", 20),
			MaxBodyBytes:        int64(getEnvAsInt("WEB_MAX_BODY_BYTES", 5<<20)),
			UserAgent:           getEnv("WEB_USER_AGENT", "study-rag/1.0"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	var errs []error
	if c.Workers.IndexWorkers <= 0 || c.Workers.JobWorkers <= 0 {
		errs = append(errs, errors.New("worker counts must be positive"))
	}
	if c.Workers.IndexQueueSize <= 0 || c.Workers.JobQueueSize <= 0 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		errs = append(errs, errors.New("OPENAI_EMBEDDING_DIMENSION must be positive"))
	}
	if c.OpenAI.LLMTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("OPENAI_LLM_TIMEOUT_SECONDS must be positive"))
	}
	if c.Vector.EfSearch < 1 || c.Vector.EfSearch > 1000 {
		errs = append(errs, errors.New("VECTOR_EF_SEARCH must be between 1 and 1000"))
	}
	if c.Web.FetchTimeoutSeconds <= 0 || c.Web.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("web fetch timeout and body limit must be positive"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ConnString はpgx用の接続文字列を返します
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
		d.SSLMode,
	)
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
