package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string

	// Model provider
	AIProvider  string
	AIModel     string
	AIBaseURL   string
	OpenAIKey   string
	GeminiKey   string
	GCPProject  string
	GCPLocation string

	// Authentication
	OIDCProvider   string
	AuthHMACSecret string
	AuthHMACIssuer string

	// Chat and usage
	ChatDailyQuota    int
	UsageFailOpen     bool
	ChatStreamTimeout time.Duration
	ChatHistoryLimit  int

	// Insight refresh
	InsightRefreshInterval time.Duration
	InsightStaleAfter      time.Duration
	DLQRetention           time.Duration
}

// LoadDotEnv loads variables from the given .env files (".env" when none are given)
// without overriding variables already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AIProvider:  getEnv("AI_PROVIDER", "openai"),
		AIModel:     getEnv("AI_MODEL", ""),
		AIBaseURL:   getEnv("AI_BASE_URL", ""),
		OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
		GeminiKey:   getEnv("GEMINI_API_KEY", ""),
		GCPProject:  getEnv("GCP_PROJECT", ""),
		GCPLocation: getEnv("GCP_LOCATION", ""),

		OIDCProvider:   getEnv("OIDC_PROVIDER", "cognito"),
		AuthHMACSecret: getEnv("AUTH_HMAC_SECRET", ""),
		AuthHMACIssuer: getEnv("AUTH_HMAC_ISSUER", ""),

		ChatDailyQuota:    getEnvInt("CHAT_DAILY_QUOTA", 25),
		UsageFailOpen:     getEnvBool("USAGE_FAIL_OPEN", false),
		ChatStreamTimeout: getEnvDuration("CHAT_STREAM_TIMEOUT", 120*time.Second),
		ChatHistoryLimit:  getEnvInt("CHAT_HISTORY_LIMIT", 20),

		InsightRefreshInterval: getEnvDuration("INSIGHT_REFRESH_INTERVAL", time.Hour),
		InsightStaleAfter:      getEnvDuration("INSIGHT_STALE_AFTER", 24*time.Hour),
		DLQRetention:           getEnvDuration("DLQ_RETENTION", 7*24*time.Hour),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ChatDailyQuota <= 0 {
		return nil, fmt.Errorf("CHAT_DAILY_QUOTA must be positive, got %d", cfg.ChatDailyQuota)
	}

	return cfg, nil
}

// RequireQueue reports an error when no RabbitMQ URL is configured. The worker cannot
// run without one; the server only loses asynchronous regeneration.
func (c *Config) RequireQueue() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for the worker")
	}
	return nil
}

// ModelAPIKey returns the API key for the configured model provider
func (c *Config) ModelAPIKey() string {
	if c.AIProvider == "gemini" {
		return c.GeminiKey
	}
	return c.OpenAIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "2h") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
