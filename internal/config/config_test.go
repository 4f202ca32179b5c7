package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ARTIFACT_BACKEND", "CORS_ALLOWED_ORIGINS", "QUEUE_BATCHING_ENABLED", "RATE_LIMIT_RPS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.ArtifactBackend != "memory" {
		t.Fatalf("expected memory artifacts, got %s", cfg.ArtifactBackend)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.QueueBatchingEnabled || cfg.RateLimitRPS != 20 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadParsesTypedValues(t *testing.T) {
	t.Setenv("ARTIFACT_BACKEND", "SQLite")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com , ,https://admin.example.com")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("BATCH_CONCURRENCY", "not-a-number")

	cfg := Load()
	if cfg.ArtifactBackend != "sqlite" {
		t.Fatalf("expected lowercased backend, got %s", cfg.ArtifactBackend)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.SchedulerEnabled || cfg.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected parsed values %+v", cfg)
	}
	if cfg.BatchConcurrency != 5 {
		t.Fatalf("expected fallback for invalid int, got %d", cfg.BatchConcurrency)
	}
}

func TestLoadDotEnvKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "JWT_SECRET=from-file\nREDIS_STREAM=\"from file\"\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-process")
	t.Setenv("REDIS_STREAM", "")
	os.Unsetenv("REDIS_STREAM")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("JWT_SECRET"); got != "from-process" {
		t.Fatalf("process value overwritten: %s", got)
	}
	if got := os.Getenv("REDIS_STREAM"); got != "from file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
