package config

import (
	"testing"
	"time"

	"github.com/example/mood-check/internal/decision"
	"github.com/example/mood-check/internal/preprocess"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.CrisisDominanceMargin != 0.4 || cfg.CrisisCombinedThreshold != 0.95 {
		t.Fatalf("unexpected crisis defaults: %v %v", cfg.CrisisDominanceMargin, cfg.CrisisCombinedThreshold)
	}
	if cfg.Temperature != 0.5 || cfg.ModelInputSize != 224 {
		t.Fatalf("unexpected model defaults: %v %v", cfg.Temperature, cfg.ModelInputSize)
	}
	if cfg.PersistAssessments {
		t.Fatal("expected text persistence to be off by default")
	}
	if cfg.MaxImagePixels != preprocess.DefaultMaxPixels {
		t.Fatalf("unexpected pixel budget default: %d", cfg.MaxImagePixels)
	}
	if !cfg.RedisEnabled || len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"CRISIS_DOMINANCE_MARGIN":   "0.3",
		"CRISIS_COMBINED_THRESHOLD": "0.9",
		"EMOTION_TEMPERATURE":       "1",
		"MODEL_NORMALIZATION":       "ImageNet",
		"PERSIST_ASSESSMENTS":       "true",
		"CORS_ORIGINS":              "http://a.test, http://b.test",
		"SHUTDOWN_TIMEOUT":          "3s",
		"MAX_IMAGE_PIXELS":          "1000000",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts := cfg.UseCaseOptions()
	if opts.Crisis != (decision.CrisisPolicy{DominanceMargin: 0.3, CombinedThreshold: 0.9}) {
		t.Fatalf("unexpected crisis policy: %+v", opts.Crisis)
	}
	if opts.Emotion.Temperature != 1 {
		t.Fatalf("unexpected temperature: %v", opts.Emotion.Temperature)
	}
	if opts.Normalization != preprocess.NormalizeImageNet {
		t.Fatalf("unexpected normalization: %v", opts.Normalization)
	}
	if !opts.PersistAssessments {
		t.Fatal("expected persistence to be enabled")
	}
	if opts.MaxImagePixels != 1_000_000 {
		t.Fatalf("unexpected pixel budget: %d", opts.MaxImagePixels)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected shutdown timeout: %v", cfg.ShutdownTimeout)
	}
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	if _, err := FromEnv(envMap(map[string]string{"CRISIS_DOMINANCE_MARGIN": "lots"})); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := FromEnv(envMap(map[string]string{"EMOTION_TEMPERATURE": "0"})); err == nil {
		t.Fatal("expected validation error for zero temperature")
	}
	if _, err := FromEnv(envMap(map[string]string{"MODEL_NORMALIZATION": "zscore"})); err == nil {
		t.Fatal("expected validation error for unknown normalization")
	}
	if _, err := FromEnv(envMap(map[string]string{"CRISIS_DOMINANCE_MARGIN": "1.5"})); err == nil {
		t.Fatal("expected validation error for out-of-range margin")
	}
}
