package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderVenice    = "venice"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"

	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Port        string     `env:"PORT" envDefault:"8080"`
	Environment string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string     `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level `env:"-"`

	LLMProvider     string `env:"LLM_PROVIDER" envDefault:"ollama"`
	ModelName       string `env:"MODEL_NAME" envDefault:"llama3.1"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	VeniceAPIKey    string `env:"VENICE_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OllamaURL       string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"sqlite"`
	CacheDir     string `env:"CACHE_DIR" envDefault:"./data/players"`
	RedisURL     string `env:"REDIS_URL"`

	TickRate         time.Duration `env:"TICK_RATE" envDefault:"50ms"`
	ResultBuffer     int           `env:"RESULT_BUFFER" envDefault:"64"`
	ShutdownGrace    time.Duration `env:"SHUTDOWN_GRACE" envDefault:"2s"`
	InferenceTimeout time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"60s"`
	Attempts         int           `env:"GENERATION_ATTEMPTS" envDefault:"1"`
	ContentFilter    bool          `env:"CONTENT_FILTER" envDefault:"true"`
	SchemaVersion    int           `env:"SCHEMA_VERSION" envDefault:"2"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case ProviderOllama:
		if c.OllamaURL == "" {
			errs = append(errs, errors.New("OLLAMA_URL is required for the ollama provider"))
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	case ProviderVenice:
		if c.VeniceAPIKey == "" {
			errs = append(errs, errors.New("VENICE_API_KEY is required for the venice provider"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.CacheBackend {
	case BackendSQLite:
		if c.CacheDir == "" {
			errs = append(errs, errors.New("CACHE_DIR is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}

	if c.TickRate <= 0 {
		errs = append(errs, errors.New("TICK_RATE must be positive"))
	}
	if c.ResultBuffer < 1 {
		errs = append(errs, errors.New("RESULT_BUFFER must be at least 1"))
	}
	if c.Attempts < 1 {
		errs = append(errs, errors.New("GENERATION_ATTEMPTS must be at least 1"))
	}
	if c.InferenceTimeout <= 0 {
		errs = append(errs, errors.New("INFERENCE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
