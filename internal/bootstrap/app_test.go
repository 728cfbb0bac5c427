package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/shared/config"
)

func TestBuildDevUsesMemory(t *testing.T) {
	app, err := Build(config.Config{Env: "dev", LocalStoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if _, ok := app.DocumentsRepo.(*documents.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.DocumentsRepo)
	}
	if app.Queue != nil {
		t.Fatalf("queue should be disabled without a url")
	}

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize-loop/async", nil)
	req.Header.Set("X-Admin-Id", "owner")
	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without queue, got %d", w.Code)
	}
}

func TestBuildWithSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "portfolio.db")
	app, err := BuildWorker(config.Config{Env: "dev", SQLitePath: path, LocalStoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("BuildWorker: %v", err)
	}
	defer app.Close()

	if _, ok := app.DocumentsRepo.(*documents.GormRepo); !ok {
		t.Fatalf("expected gorm repo, got %T", app.DocumentsRepo)
	}
	if app.Optimizer == nil {
		t.Fatalf("expected optimizer")
	}
}

func TestBuildProductionRequiresDatabase(t *testing.T) {
	if _, err := Build(config.Config{Env: "production", AdminJWTSecret: "secret"}); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestBuildS3RequiresBucket(t *testing.T) {
	if _, err := Build(config.Config{Env: "dev", ObjectStoreType: "s3"}); err == nil {
		t.Fatalf("expected error without S3_BUCKET")
	}
}
