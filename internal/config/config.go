// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is built once at start-up and handed to each component's constructor.
type Config struct {
	Port      string `validate:"required,numeric"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	Generation Generation
	Embedding  Embedding
	Validation Validation
	Tasks      Tasks
	Redis      Redis

	// DatabaseURL enables the Postgres report sink when set.
	DatabaseURL string
}

type Generation struct {
	Provider             string `validate:"oneof=openai ollama"`
	BaseURL              string `validate:"omitempty,url"`
	APIKey               string
	Model                string `validate:"required"`
	JudgeModel           string `validate:"required"`
	UseGoogleCredentials bool
	MaxAttempts          int           `validate:"min=1,max=10"`
	BaseDelay            time.Duration `validate:"min=0"`
	Timeout              time.Duration `validate:"gt=0"`
	SummaryTemperature   float32       `validate:"min=0,max=2"`
}

type Embedding struct {
	Provider string `validate:"oneof=openai ollama"`
	URL      string `validate:"omitempty,url"`
	Model    string `validate:"required"`
	Timeout  time.Duration `validate:"gt=0"`
}

type Validation struct {
	SimilarityThreshold float64 `validate:"min=0,max=1"`
	HighConfidence      float64 `validate:"min=0,max=1"`
}

type Tasks struct {
	FetchTimeout     time.Duration `validate:"gt=0"`
	ChunkConcurrency int           `validate:"min=1"`
}

type Redis struct {
	Addr     string
	Password string
	DB       int `validate:"min=0"`
	TTL      time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file (path may be empty for ./.env), then the
// environment, and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	var errs []error
	cfg := &Config{
		Port:      getEnv("PORT", "8084"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		Generation: Generation{
			Provider:             getEnv("GENERATION_PROVIDER", "openai"),
			BaseURL:              getEnv("GENERATION_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			APIKey:               getEnv("GENERATION_API_KEY", os.Getenv("GOOGLE_API_KEY")),
			Model:                getEnv("GENERATION_MODEL", "gemini-2.5-flash-lite"),
			JudgeModel:           getEnv("JUDGE_MODEL", "gemini-2.5-flash"),
			UseGoogleCredentials: getBool("GENERATION_USE_GOOGLE_CREDENTIALS", false, &errs),
			MaxAttempts:          getInt("GENERATION_MAX_ATTEMPTS", 3, &errs),
			BaseDelay:            getDuration("GENERATION_BASE_DELAY", 30*time.Second, &errs),
			Timeout:              getDuration("GENERATION_TIMEOUT", 2*time.Minute, &errs),
			SummaryTemperature:   float32(getFloat("SUMMARY_TEMPERATURE", 0.7, &errs)),
		},
		Embedding: Embedding{
			Provider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			URL:      getEnv("EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
			Model:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Timeout:  getDuration("EMBEDDING_TIMEOUT", 30*time.Second, &errs),
		},
		Validation: Validation{
			SimilarityThreshold: getFloat("SIMILARITY_THRESHOLD", 0.7, &errs),
			HighConfidence:      getFloat("JUDGE_HIGH_CONFIDENCE", 0.8, &errs),
		},
		Tasks: Tasks{
			FetchTimeout:     getDuration("FETCH_TIMEOUT", 10*time.Second, &errs),
			ChunkConcurrency: getInt("CHUNK_CONCURRENCY", 4, &errs),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0, &errs),
			TTL:      getDuration("FETCH_CACHE_TTL", 10*time.Minute, &errs),
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("30s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}
