package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration read from the environment.
type Config struct {
	DatabaseURL       string
	Port              string
	OpenAIAPIKey      string
	OpenAIChatModel   string
	OpenAIMaxTokens   int
	LLMTimeout        time.Duration
	LogMode           string
	RedisURL          string
	ReferenceCacheTTL time.Duration
	NotifyChannel     string
	ShutdownTimeout   time.Duration
}

// Load reads the configuration.  Only DATABASE_URL is required; malformed
// numbers and durations fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		Port:              getEnv("PORT", "8080"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel:   getEnv("OPENAI_MODEL_CHAT", "gpt-4o-mini"),
		OpenAIMaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
		LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		LogMode:           getEnv("LOG_MODE", "dev"),
		RedisURL:          getEnv("REDIS_URL", ""),
		ReferenceCacheTTL: getEnvAsDuration("REFERENCE_CACHE_TTL", 10*time.Minute),
		NotifyChannel:     getEnv("NOTIFY_CHANNEL", "conversation_completed"),
		ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
