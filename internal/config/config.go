package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Crawler  CrawlerConfig
	LLM      LLMConfig
	Ingest   IngestConfig
	Chat     ChatConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type CrawlerConfig struct {
	BaseURL       string
	APIKey        string
	WebhookURL    string
	WebhookSecret string
	PageLimit     int
	PollInterval  time.Duration
	WatchTimeout  time.Duration
}

type LLMConfig struct {
	OpenAIKey       string
	AnthropicKey    string
	DefaultProvider string
	ChatModel       string
	TitleModel      string
	EmbeddingModel  string
	MaxRetries      int
}

type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	UpsertBatchSize  int
	SnippetLimit     int
	VerifySampleSize int
	MaxVerifyRetries int
	VerifyRetryDelay time.Duration
	SettleBaseDelay  time.Duration
	SettlePerVector  time.Duration
	SettleMaxDelay   time.Duration
}

type ChatConfig struct {
	TopK int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	pageLimit, err := getEnvInt("CRAWL_PAGE_LIMIT", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid CRAWL_PAGE_LIMIT: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	chunkSize, err := getEnvInt("INGEST_CHUNK_SIZE", 6000)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("INGEST_CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CHUNK_OVERLAP: %w", err)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("INGEST_CHUNK_OVERLAP (%d) must be smaller than INGEST_CHUNK_SIZE (%d)", chunkOverlap, chunkSize)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Crawler: CrawlerConfig{
			BaseURL:       getEnv("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
			APIKey:        getEnv("FIRECRAWL_API_KEY", ""),
			WebhookURL:    getEnv("FIRECRAWL_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("FIRECRAWL_WEBHOOK_SECRET", ""),
			PageLimit:     pageLimit,
			PollInterval:  getEnvDuration("CRAWL_POLL_INTERVAL", 2*time.Second),
			WatchTimeout:  getEnvDuration("CRAWL_WATCH_TIMEOUT", 5*time.Minute),
		},
		LLM: LLMConfig{
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider: getEnv("LLM_DEFAULT_PROVIDER", "anthropic"),
			ChatModel:       getEnv("LLM_CHAT_MODEL", "claude-haiku-4-5"),
			TitleModel:      getEnv("LLM_TITLE_MODEL", "claude-3-5-haiku-latest"),
			EmbeddingModel:  getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxRetries:      maxRetries,
		},
		Ingest: IngestConfig{
			ChunkSize:        chunkSize,
			ChunkOverlap:     chunkOverlap,
			EmbedBatchSize:   100,
			UpsertBatchSize:  100,
			SnippetLimit:     1000,
			VerifySampleSize: 5,
			MaxVerifyRetries: 3,
			VerifyRetryDelay: getEnvDuration("INGEST_VERIFY_RETRY_DELAY", time.Second),
			SettleBaseDelay:  getEnvDuration("INGEST_SETTLE_BASE_DELAY", 2*time.Second),
			SettlePerVector:  getEnvDuration("INGEST_SETTLE_PER_VECTOR", 50*time.Millisecond),
			SettleMaxDelay:   getEnvDuration("INGEST_SETTLE_MAX_DELAY", 15*time.Second),
		},
		Chat: ChatConfig{
			TopK: 10,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Crawler.APIKey == "" {
		missing = append(missing, "FIRECRAWL_API_KEY")
	}
	if c.Crawler.WebhookSecret == "" {
		missing = append(missing, "FIRECRAWL_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
