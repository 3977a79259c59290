// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration. Scoring data (allowed
// countries, tour amount bands) is not configuration; it lives in the rule
// file referenced by RulesFile.
type Config struct {
	// Server settings
	Port         string
	OperatorPort string // empty disables the operator HTTP surface
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"; defaults to text in development

	// Shared key-value store
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration // per round-trip read/write timeout

	// Scoring data
	RulesFile string // empty means built-in rules

	// Optional ops alert when an attempt is queued for review
	ReviewWebhookURL string
}

const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultRedisAddr    = "localhost:6379"
	DefaultRedisTimeout = 50 * time.Millisecond
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		OperatorPort:     os.Getenv("OPERATOR_PORT"),
		LogFormat:        os.Getenv("LOG_FORMAT"),
		StoreBackend:     getEnv("STORE_BACKEND", BackendRedis),
		RedisAddr:        getEnv("REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          int(getEnvInt64("REDIS_DB", 0)),
		RedisTimeout:     getEnvDuration("REDIS_TIMEOUT", DefaultRedisTimeout),
		RulesFile:        os.Getenv("RULES_FILE"),
		ReviewWebhookURL: os.Getenv("REVIEW_WEBHOOK_URL"),
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
		if cfg.IsDevelopment() {
			cfg.LogFormat = "text"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q", BackendRedis, BackendMemory)
	}

	if c.RedisTimeout <= 0 {
		return fmt.Errorf("REDIS_TIMEOUT must be positive")
	}
	if c.OperatorPort != "" && c.OperatorPort == c.Port {
		return fmt.Errorf("OPERATOR_PORT must differ from PORT")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
