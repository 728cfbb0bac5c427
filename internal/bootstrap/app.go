// Package bootstrap builds the shared dependency graph for the api and
// worker processes.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/evidence"
	"portfolio-backend/internal/llm"
	anthropicllm "portfolio-backend/internal/llm/anthropic"
	openaillm "portfolio-backend/internal/llm/openai"
	"portfolio-backend/internal/optimize"
	"portfolio-backend/internal/queue"
	"portfolio-backend/internal/review"
	"portfolio-backend/internal/rewrite"
	"portfolio-backend/internal/shared/auth"
	"portfolio-backend/internal/shared/config"
	"portfolio-backend/internal/shared/server"
	"portfolio-backend/internal/shared/server/middleware"
	"portfolio-backend/internal/shared/storage/db"
	"portfolio-backend/internal/shared/storage/object"
	localstore "portfolio-backend/internal/shared/storage/object/local"
	s3store "portfolio-backend/internal/shared/storage/object/s3"
	"portfolio-backend/internal/shared/storage/sqlite"
	"portfolio-backend/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Gorm     *gorm.DB
	Store    object.Store
	Queue    queue.Client
	Provider llm.Provider
	Signer   *auth.Signer

	DocumentsRepo documents.Repo
	EvidenceRepo  evidence.Repo

	DocumentsService *documents.Service
	EvidenceService  *evidence.Service
	ReviewService    *review.Service
	RewriteService   *rewrite.Service
	Optimizer        *optimize.Orchestrator

	DocumentsHandler *documents.Handler
	EvidenceHandler  *evidence.Handler
	RewriteHandler   *rewrite.Handler
	OptimizeHandler  *optimize.Handler
}

// Build prepares dependencies for the HTTP api and wires the router.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, db.OptionsFromEnv(db.DefaultServerOptions()))
}

// BuildWorker prepares dependencies for the queue worker, with a smaller
// database pool.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.OptionsFromEnv(db.DefaultWorkerOptions()))
}

func build(cfg config.Config, opts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB == nil && strings.TrimSpace(cfg.SQLitePath) != "" {
		gdb, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.Gorm = gdb
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Queue = queueClient

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	app.Provider = provider

	if strings.TrimSpace(cfg.AdminJWTSecret) != "" {
		signer, err := auth.NewSigner(cfg.AdminJWTSecret, 0, nil)
		if err != nil {
			return nil, err
		}
		app.Signer = signer
	} else if cfg.IsProduction() {
		return nil, errors.New("ADMIN_JWT_SECRET is required in production")
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	deps := server.RouterDeps{
		Config:          cfg,
		Limiter:         middleware.NewRateLimiter(nil),
		DocumentHandler: app.DocumentsHandler,
		EvidenceHandler: app.EvidenceHandler,
		RewriteHandler:  app.RewriteHandler,
		OptimizeHandler: app.OptimizeHandler,
	}
	if app.Signer != nil {
		deps.Verifier = app.Signer
	}
	app.Router = server.NewRouter(deps)

	return app, nil
}

// Close releases database connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Gorm != nil {
		errs = append(errs, sqlite.Close(a.Gorm))
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; falling back: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.OptimizeQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.OptimizeQueueURL, cfg.AWSRegion)
}

// buildProvider routes claude-* models to Anthropic and everything else to
// OpenAI. Missing keys leave the placeholder in place.
func buildProvider(cfg config.Config) (llm.Provider, error) {
	registry := llm.NewRegistry(llm.PlaceholderProvider{})
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		client, err := anthropicllm.NewClient(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		registry.Register("anthropic", anthropicllm.Supports, client)
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		client, err := openaillm.NewClient(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		registry.Register("openai", openaillm.Supports, client)
	}
	telemetry.Info("bootstrap.llm", map[string]any{
		"providers":       strings.Join(registry.Names(), ","),
		"writer_model":    cfg.WriterModel,
		"reviewer_model":  cfg.ReviewerModel,
		"humanizer_model": cfg.HumanizerModel,
	})
	return llm.WithRetry(llm.WithTimeout(registry, cfg.LLMCallTimeout)), nil
}

func buildServices(app *App) error {
	switch {
	case app.DB != nil:
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.EvidenceRepo = &evidence.PGRepo{DB: app.DB}
	case app.Gorm != nil:
		repo, err := documents.NewGormRepo(app.Gorm)
		if err != nil {
			return err
		}
		app.DocumentsRepo = repo
		app.EvidenceRepo = evidence.NewMemoryRepo()
	default:
		log.Printf("bootstrap: no database configured; using in-memory repositories")
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.EvidenceRepo = evidence.NewMemoryRepo()
	}

	cfg := app.Config
	tones := rewrite.DefaultTones()

	app.DocumentsService = documents.NewService(app.DocumentsRepo)
	app.EvidenceService = evidence.NewService(app.EvidenceRepo, app.Store, cfg.EvidenceCacheTTL)
	app.ReviewService = review.NewService(app.Provider, review.DefaultRubric(), cfg.ReviewerModel)
	app.RewriteService = rewrite.NewService(app.DocumentsService, app.Provider, app.EvidenceService, tones, cfg.WriterModel)
	app.Optimizer = optimize.NewOrchestrator(app.DocumentsService, app.Provider, app.ReviewService, app.EvidenceService, tones, optimize.Config{
		WriterModel:    cfg.WriterModel,
		ReviewerModel:  cfg.ReviewerModel,
		HumanizerModel: cfg.HumanizerModel,
		Humanize:       cfg.OptimizeHumanize,
		CallTimeout:    cfg.LLMCallTimeout,
	})

	var enqueuer optimize.Enqueuer
	if app.Queue != nil {
		enqueuer = queue.Enqueuer{Client: app.Queue}
	}

	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.EvidenceHandler = evidence.NewHandler(app.EvidenceService)
	app.RewriteHandler = rewrite.NewHandler(app.RewriteService)
	app.OptimizeHandler = optimize.NewHandler(app.Optimizer, enqueuer)
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
