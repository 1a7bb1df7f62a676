// Package config loads service configuration from environment variables
// with production defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the umbrella configuration for the service.
type Config struct {
	HTTPPort string

	Queue    QueueConfig
	Worker   WorkerConfig
	Cache    CacheConfig
	Analyzer AnalyzerConfig
	News     NewsConfig
	Notify   NotifyConfig

	// RetentionDays bounds how long completed/failed searches and their
	// derived rows are kept before the cleanup sweep purges them.
	RetentionDays int
}

// CacheConfig configures the Redis result cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AnalyzerConfig configures the LLM analyzer client.
type AnalyzerConfig struct {
	APIKey string
	Model  string
	// CostPerMTok is the USD cost per million tokens used for the
	// api_usage estimate.
	CostPerMTok float64
	MaxTokens   int
}

// NewsConfig configures the news-source client.
type NewsConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotifyConfig configures optional Slack notifications. Empty token
// disables delivery.
type NotifyConfig struct {
	SlackToken   string
	SlackChannel string
}

// FromEnv loads the full configuration from the environment.
func FromEnv() (*Config, error) {
	queue, err := queueFromEnv()
	if err != nil {
		return nil, err
	}
	worker, err := workerFromEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Queue:    queue,
		Worker:   worker,
		Cache: CacheConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("CACHE_TTL_S", 1800)) * time.Second,
		},
		Analyzer: AnalyzerConfig{
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			Model:       getEnv("ANALYSIS_MODEL", "claude-sonnet-4-5"),
			CostPerMTok: getEnvFloat("ANALYSIS_COST_PER_MTOK", 3.0),
			MaxTokens:   getEnvInt("ANALYSIS_MAX_TOKENS", 4096),
		},
		News: NewsConfig{
			BaseURL: getEnv("HN_BASE_URL", "https://hn.algolia.com/api/v1"),
			Timeout: time.Duration(getEnvInt("HN_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Notify: NotifyConfig{
			SlackToken:   os.Getenv("SLACK_BOT_TOKEN"),
			SlackChannel: os.Getenv("SLACK_CHANNEL"),
		},
		RetentionDays: getEnvInt("RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env parsing cannot.
func (c *Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL_S must be positive")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
