package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "OBJECT_STORE", "LLM_CALL_TIMEOUT_SECONDS", "OPTIMIZE_HUMANIZE", "LLM_WRITER_MODEL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected dev env, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.LLMCallTimeout != 90*time.Second {
		t.Fatalf("expected 90s call timeout, got %s", cfg.LLMCallTimeout)
	}
	if cfg.OptimizeHumanize {
		t.Fatalf("expected humanizer disabled by default")
	}
	if cfg.WriterModel == "" {
		t.Fatalf("expected a default writer model")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("LLM_CALL_TIMEOUT_SECONDS", "15")
	t.Setenv("OPTIMIZE_HUMANIZE", "true")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if !cfg.IsProduction() {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3 store, got %q", cfg.ObjectStoreType)
	}
	if cfg.LLMCallTimeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %s", cfg.LLMCallTimeout)
	}
	if !cfg.OptimizeHumanize {
		t.Fatalf("expected humanizer enabled")
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowOrigin)
	}
}

func TestLoadEnvFilesKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PORTFOLIO_TEST_A=from-file\nPORTFOLIO_TEST_B=\"quoted\"\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORTFOLIO_TEST_A", "from-env")
	t.Setenv("PORTFOLIO_TEST_B", "")
	os.Unsetenv("PORTFOLIO_TEST_B")

	loadEnvFiles(path, filepath.Join(dir, "missing.env"))

	if got := os.Getenv("PORTFOLIO_TEST_A"); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
	if got := os.Getenv("PORTFOLIO_TEST_B"); got != "quoted" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
