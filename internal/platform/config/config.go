package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// 成果物とベクトルストアの保存先
	Storage StorageConfig

	// Database設定（postgres バックエンド使用時のみ）
	Database DatabaseConfig

	// Embedding プロバイダ選択
	Embedding EmbeddingConfig

	// OpenAI設定（Embeddings / HyDE / チャット）
	OpenAI OpenAIConfig

	// Ollama設定（デフォルトの Embedding プロバイダ）
	Ollama OllamaConfig

	// Text Embeddings Inference 設定（Embedding / Rerank）
	TEI TEIConfig

	// Git設定
	Git GitConfig

	// 取り込み設定
	Ingestion IngestionConfig

	// 検索設定
	Search SearchConfig

	// ログ設定
	Log LogConfig
}

// StorageConfig は保存先の設定
type StorageConfig struct {
	Root    string // プロジェクトごとの成果物ディレクトリを置くルート
	Backend string // "sqlite" or "postgres"
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

// EmbeddingConfig は Embedding 設定
type EmbeddingConfig struct {
	Provider  string // "ollama", "openai" or "tei"
	BatchSize int
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string // HyDE のクエリ拡張に使用
	ChatModel          string // コードベースへの質問応答に使用
}

// OllamaConfig は Ollama 設定
type OllamaConfig struct {
	Host           string
	EmbeddingModel string
	MaxConcurrency int
}

// TEIConfig は Text Embeddings Inference 設定
type TEIConfig struct {
	EmbedURL  string
	RerankURL string // 空の場合は再ランク付けを行わない
}

// GitConfig はGit操作設定
type GitConfig struct {
	SSHKeyPath  string
	SSHPassword string // SSH秘密鍵のパスワード（パスフレーズ）
}

// IngestionConfig は取り込みパイプライン設定
type IngestionConfig struct {
	MaxTokens     int
	TokenEncoding string
	ParseWorkers  int
}

// SearchConfig は検索設定
type SearchConfig struct {
	HyDEMode   string // "off", "single" or "two-pass"
	FetchLimit int
	KeepLimit  int
	CacheSize  int
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string
	Format string
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

	root, err := expandHome(getEnv("CODEQA_STORAGE_ROOT", "~/.codeqa/indices"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	cfg := &Config{
		Storage: StorageConfig{
			Root:    root,
			Backend: strings.ToLower(getEnv("CODEQA_VECTOR_BACKEND", "sqlite")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "codeqa"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "codeqa"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("CODEQA_EMBEDDER", "ollama")),
			BatchSize: getEnvAsInt("CODEQA_EMBED_BATCH_SIZE", 32),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),
		},
		Ollama: OllamaConfig{
			Host:           getEnv("OLLAMA_HOST", "http://localhost:11434"),
			EmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			MaxConcurrency: getEnvAsInt("OLLAMA_MAX_CONCURRENCY", 4),
		},
		TEI: TEIConfig{
			EmbedURL:  getEnv("TEI_EMBED_URL", "http://localhost:8080"),
			RerankURL: getEnv("TEI_RERANK_URL", ""),
		},
		Git: GitConfig{
			SSHKeyPath:  getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword: getEnv("GIT_SSH_PASSWORD", ""),
		},
		Ingestion: IngestionConfig{
			MaxTokens:     getEnvAsInt("CODEQA_MAX_TOKENS", 8000),
			TokenEncoding: getEnv("CODEQA_TOKEN_ENCODING", "cl100k_base"),
			ParseWorkers:  getEnvAsInt("CODEQA_PARSE_WORKERS", 4),
		},
		Search: SearchConfig{
			HyDEMode:   strings.ToLower(getEnv("CODEQA_HYDE_MODE", "off")),
			FetchLimit: getEnvAsInt("CODEQA_SEARCH_FETCH", 5),
			KeepLimit:  getEnvAsInt("CODEQA_SEARCH_KEEP", 3),
			CacheSize:  getEnvAsInt("CODEQA_QUERY_CACHE_SIZE", 256),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported vector backend: %s", c.Storage.Backend)
	}

	switch c.Embedding.Provider {
	case "ollama", "openai", "tei":
	default:
		return fmt.Errorf("unsupported embedder: %s", c.Embedding.Provider)
	}

	switch c.Search.HyDEMode {
	case "off", "single", "two-pass":
	default:
		return fmt.Errorf("unsupported HyDE mode: %s", c.Search.HyDEMode)
	}

	if c.Search.KeepLimit > c.Search.FetchLimit {
		return fmt.Errorf("CODEQA_SEARCH_KEEP (%d) must not exceed CODEQA_SEARCH_FETCH (%d)", c.Search.KeepLimit, c.Search.FetchLimit)
	}

	return nil
}

// ChatEnabled はチャットや HyDE に使う OpenAI の資格情報が設定されているかを返します
func (c *Config) ChatEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// expandHome は先頭の "~" をホームディレクトリに展開します
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
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
