package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Search        SearchConfig
	Embedding     EmbeddingConfig
	LLM           LLMConfig
	Chat          ChatConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SearchConfig holds the search backend connection settings. Ranking and
// Summary must match a rank-profile and document-summary in the deployed
// schema.
type SearchConfig struct {
	BaseURL string
	Schema  string
	Ranking string
	Summary string
	Timeout time.Duration
}

// EmbeddingConfig holds the optional query-embedding backend settings.
// When BaseURL is empty no embedder is wired and queries are sent without a
// vector.
type EmbeddingConfig struct {
	BaseURL string
	Model   string
}

// LLMConfig holds the OpenAI-compatible completion backend settings
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ChatConfig holds the retrieval defaults applied when a chat request leaves
// them unset
type ChatConfig struct {
	Hits           int
	K              int
	QueryExpansion int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Search: SearchConfig{
			BaseURL: getEnv("SEARCH_URL", "http://localhost:8081"),
			Schema:  getEnv("SEARCH_SCHEMA", "doc"),
			Ranking: getEnv("SEARCH_RANKING", "base-features"),
			Summary: getEnv("SEARCH_SUMMARY", "no-chunks"),
			Timeout: getEnvAsDuration("SEARCH_TIMEOUT", 20*time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", ""),
			Timeout: getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Chat: ChatConfig{
			Hits:           getEnvAsInt("CHAT_HITS", 5),
			K:              getEnvAsInt("CHAT_K", 3),
			QueryExpansion: getEnvAsInt("CHAT_QUERY_EXPANSION", 3),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search backend URL is required: set SEARCH_URL")
	}
	if c.Search.Schema == "" {
		return fmt.Errorf("search schema is required: set SEARCH_SCHEMA")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base URL is required: set LLM_BASE_URL")
	}

	if c.IsProduction() {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm API key is required in production: set LLM_API_KEY")
		}
	}

	if c.Chat.Hits <= 0 {
		return fmt.Errorf("chat hits must be positive")
	}
	if c.Chat.K <= 0 {
		return fmt.Errorf("chat k must be positive")
	}
	if c.Chat.QueryExpansion < 0 {
		return fmt.Errorf("chat query expansion must not be negative")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
