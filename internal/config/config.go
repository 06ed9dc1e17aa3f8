/**
 * Configuration for the Legal Structuring Worker
 *
 * Loads configuration from environment variables matching .env.legalstruct.
 * An optional YAML engine profile (ENGINE_PROFILE) overrides the engine
 * section: escalation models, prompts, similarity parameters and thresholds.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/legalstruct-worker/internal/engine"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Queue configuration
	QueueBackend    string // "redis" (LIST queue) or "asynq"
	QueueName       string
	ResultQueueName string

	// LLM provider configuration
	LLMProvider string // gemini, anthropic or openai
	LLMAPIKeys  []string
	LLMBaseURL  string // OpenAI-compatible endpoint, openai provider only
	MaxRetries  int
	RateLimit   int // requests per minute per key

	// Engine configuration (models, prompts, thresholds)
	Engine        engine.Config
	EngineProfile string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	MaxFileSize       int64
	CacheTTL          time.Duration
	MetricsAddr       string

	// Tesseract configuration
	TesseractLanguages []string

	// Logging
	LogLevel string

	// Node environment
	NodeEnv string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv reads the environment and engine profile without validating, for
// tools that only need the queue settings.
func FromEnv() (*Config, error) {
	eng := engine.DefaultConfig()
	eng.Models = getEnvAsListOrDefault("LLM_MODELS", []string{"gemini-2.5-flash", "gemini-2.5-pro"})
	eng.JudgeModel = getEnvOrDefault("JUDGE_MODEL", "")
	eng.MaxOutputTokens = getEnvAsIntOrDefault("MAX_OUTPUT_TOKENS", eng.MaxOutputTokens)
	eng.Quality.Rejection = getEnvAsFloatOrDefault("DIFF_THRESHOLD", eng.Quality.Rejection)
	eng.Quality.Approval = getEnvAsFloatOrDefault("APPROVAL_THRESHOLD", eng.Quality.Approval)
	eng.Quality.MinDiffChars = getEnvAsIntOrDefault("MIN_DIFF_CHARS", eng.Quality.MinDiffChars)

	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		QueueBackend:       getEnvOrDefault("QUEUE_BACKEND", "redis"),
		QueueName:          getEnvOrDefault("QUEUE_NAME", "legalstruct:jobs"),
		ResultQueueName:    getEnvOrDefault("RESULT_QUEUE_NAME", "legalstruct:results"),
		LLMProvider:        strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "gemini")),
		LLMAPIKeys:         getEnvAsListOrDefault("LLM_API_KEYS", nil),
		LLMBaseURL:         getEnvOrDefault("LLM_BASE_URL", ""),
		MaxRetries:         getEnvAsIntOrDefault("MAX_RETRIES", 3),
		RateLimit:          getEnvAsIntOrDefault("RATE_LIMIT", 15),
		Engine:             eng,
		EngineProfile:      getEnvOrDefault("ENGINE_PROFILE", ""),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:  getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 600000), // 10 minutes
		MaxFileSize:        int64(getEnvAsIntOrDefault("MAX_FILE_SIZE", 20*1024*1024)),
		CacheTTL:           getEnvAsDurationOrDefault("CACHE_TTL", 7*24*time.Hour),
		MetricsAddr:        getEnvOrDefault("METRICS_ADDR", ":9108"),
		TesseractLanguages: getEnvAsListOrDefault("TESSERACT_LANGUAGES", []string{"spa"}),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		NodeEnv:            getEnvOrDefault("NODE_ENV", "development"),
	}

	if cfg.EngineProfile != "" {
		if err := cfg.ApplyProfile(cfg.EngineProfile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ApplyProfile overlays a YAML engine profile on the engine configuration.
// Keys absent from the file keep their current values.
func (c *Config) ApplyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read engine profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c.Engine); err != nil {
		return fmt.Errorf("failed to parse engine profile %s: %w", path, err)
	}
	return nil
}

// Validate checks if configuration is valid for structuring documents
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "gemini", "anthropic", "openai":
	default:
		return fmt.Errorf("LLM_PROVIDER must be gemini, anthropic or openai, got %q", c.LLMProvider)
	}

	if len(c.LLMAPIKeys) == 0 {
		return fmt.Errorf("LLM_API_KEYS is required")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}

	if c.RateLimit < 1 {
		return fmt.Errorf("RATE_LIMIT must be >= 1, got %d", c.RateLimit)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be >= 0, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	return c.Engine.Validate()
}

// ValidateWorker additionally checks what the queue worker needs
func (c *Config) ValidateWorker() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.QueueBackend {
	case "redis", "asynq":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	return nil
}

// Timeout returns the per-document processing timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
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

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
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

// getEnvAsDurationOrDefault accepts Go durations ("12h") or whole seconds
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsListOrDefault splits a comma-separated variable, dropping blanks
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
