package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DEFAULT_PROVIDER", "")
	t.Setenv("MASK_TOLERANCE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DefaultProvider != "mock" {
		t.Fatalf("DefaultProvider mismatch: got %q want %q", cfg.DefaultProvider, "mock")
	}
	if cfg.MaskTolerance != 30 {
		t.Fatalf("MaskTolerance mismatch: got %d want 30", cfg.MaskTolerance)
	}
	if cfg.MockDelay != 2*time.Second {
		t.Fatalf("MockDelay mismatch: got %s", cfg.MockDelay)
	}
	if !cfg.WorkerInline {
		t.Fatalf("WorkerInline should default to true")
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadConfigRequiresDatabaseOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL in production")
	}
}

func TestLoadConfigRejectsToleranceOutOfRange(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MASK_TOLERANCE", "300")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for MASK_TOLERANCE=300")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DEFAULT_PROVIDER", "Stability")
	t.Setenv("WORKER_INLINE", "false")
	t.Setenv("WORKER_CONCURRENCY", "0")
	t.Setenv("AUTO_TAGGING", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DefaultProvider != "stability" {
		t.Fatalf("DefaultProvider mismatch: got %q", cfg.DefaultProvider)
	}
	if cfg.WorkerInline {
		t.Fatalf("WorkerInline should be false")
	}
	if cfg.WorkerConcurrency != 1 {
		t.Fatalf("WorkerConcurrency should be clamped to 1, got %d", cfg.WorkerConcurrency)
	}
	if !cfg.AutoTagging {
		t.Fatalf("AutoTagging should be true")
	}
}

func TestLoadConfigCORSOrigins(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %q", cfg.CORSOrigins)
	}
	if cfg.JobRateLimit != 60 {
		t.Fatalf("JobRateLimit mismatch: got %d", cfg.JobRateLimit)
	}
}
