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

	"github.com/example/mood-check/internal/decision"
	"github.com/example/mood-check/internal/logging"
	"github.com/example/mood-check/internal/preprocess"
	"github.com/example/mood-check/internal/usecase"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	HTTPAddr        string        `validate:"required"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	CORSOrigins     []string

	DatabaseDSN    string `validate:"required"`
	RedisEnabled   bool
	RedisAddr      string `validate:"required_if=RedisEnabled true"`
	RedisNamespace string

	ModelServerAddr     string `validate:"required"`
	ModelMaxConcurrency int64  `validate:"gte=0"`

	JWTSecret   string
	JWTAudience string

	Temperature             float64 `validate:"gt=0"`
	CrisisDominanceMargin   float64 `validate:"gte=0,lte=1"`
	CrisisCombinedThreshold float64 `validate:"gte=0,lte=2"`
	ModelInputSize          int     `validate:"gt=0"`
	Normalization           string  `validate:"oneof=efficientnet unit imagenet"`
	MaxImagePixels          int     `validate:"gte=0"`
	MaxTextLength           int     `validate:"gte=0"`
	PersistAssessments      bool
	ResultTTL               time.Duration `validate:"gt=0"`

	Log logging.Options
}

// Load reads an optional .env file, then the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup, which is usually os.Getenv.
func FromEnv(lookup func(string) string) (*Config, error) {
	r := reader{lookup: lookup}
	cfg := &Config{
		HTTPAddr:        r.str("HTTP_ADDR", ":8080"),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     r.list("CORS_ORIGINS", []string{"*"}),

		DatabaseDSN:    r.str("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=moodcheck port=5432 sslmode=disable"),
		RedisEnabled:   r.boolean("REDIS_ENABLED", true),
		RedisAddr:      r.str("REDIS_ADDR", "redis:6379"),
		RedisNamespace: r.str("REDIS_NAMESPACE", usecase.DefaultCacheNamespace),

		ModelServerAddr:     r.str("MODEL_SERVER_ADDR", "model-server:50051"),
		ModelMaxConcurrency: int64(r.integer("MODEL_MAX_CONCURRENCY", 4)),

		JWTSecret:   r.str("JWT_SECRET", "dev-secret"),
		JWTAudience: r.str("JWT_AUDIENCE", ""),

		Temperature:             r.float("EMOTION_TEMPERATURE", decision.DefaultTemperature),
		CrisisDominanceMargin:   r.float("CRISIS_DOMINANCE_MARGIN", decision.DefaultDominanceMargin),
		CrisisCombinedThreshold: r.float("CRISIS_COMBINED_THRESHOLD", decision.DefaultCombinedThreshold),
		ModelInputSize:          r.integer("MODEL_INPUT_SIZE", preprocess.DefaultInputSize),
		Normalization:           strings.ToLower(r.str("MODEL_NORMALIZATION", string(preprocess.NormalizeEfficientNet))),
		MaxImagePixels:          r.integer("MAX_IMAGE_PIXELS", preprocess.DefaultMaxPixels),
		MaxTextLength:           r.integer("MAX_TEXT_LENGTH", 5000),
		PersistAssessments:      r.boolean("PERSIST_ASSESSMENTS", false),
		ResultTTL:               r.duration("RESULT_TTL", 10*time.Minute),

		Log: logging.Options{
			Level:      r.str("LOG_LEVEL", "info"),
			File:       r.str("LOG_FILE", ""),
			MaxSizeMB:  r.integer("LOG_MAX_SIZE_MB", 100),
			MaxBackups: r.integer("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: r.integer("LOG_MAX_AGE_DAYS", 7),
		},
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// UseCaseOptions translates the decision settings for the use case.
func (c *Config) UseCaseOptions() usecase.Options {
	opts := usecase.DefaultOptions()
	opts.Emotion = decision.EmotionDecider{Temperature: c.Temperature}
	opts.Crisis = decision.CrisisPolicy{
		DominanceMargin:   c.CrisisDominanceMargin,
		CombinedThreshold: c.CrisisCombinedThreshold,
	}
	opts.InputSize = c.ModelInputSize
	opts.Normalization = preprocess.Normalization(c.Normalization)
	opts.MaxImagePixels = c.MaxImagePixels
	opts.MaxTextLength = c.MaxTextLength
	opts.PersistAssessments = c.PersistAssessments
	opts.ResultTTL = c.ResultTTL
	opts.ScoresTTL = c.ResultTTL
	return opts
}

type reader struct {
	lookup func(string) string
	errs   []error
}

func (r *reader) str(key, fallback string) string {
	if value := strings.TrimSpace(r.lookup(key)); value != "" {
		return value
	}
	return fallback
}

func (r *reader) list(key string, fallback []string) []string {
	value := r.str(key, "")
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) integer(key string, fallback int) int {
	value := r.str(key, "")
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (r *reader) float(key string, fallback float64) float64 {
	value := r.str(key, "")
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (r *reader) boolean(key string, fallback bool) bool {
	value := r.str(key, "")
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	value := r.str(key, "")
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
