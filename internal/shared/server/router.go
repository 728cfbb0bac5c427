package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/evidence"
	"portfolio-backend/internal/optimize"
	"portfolio-backend/internal/rewrite"
	"portfolio-backend/internal/shared/config"
	"portfolio-backend/internal/shared/metrics"
	"portfolio-backend/internal/shared/server/middleware"
	"portfolio-backend/internal/shared/server/respond"
)

// RouterDeps lists the handlers and policies the router mounts. Nil handlers
// are skipped.
type RouterDeps struct {
	Config          config.Config
	Verifier        middleware.TokenVerifier
	Limiter         *middleware.RateLimiter
	DocumentHandler *documents.Handler
	EvidenceHandler *evidence.Handler
	RewriteHandler  *rewrite.Handler
	OptimizeHandler *optimize.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
// CORS is applied outside gin, around the engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)

	health := func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	}
	r.GET("/health", health)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", health)

	secured := api.Group("", middleware.AdminAuth(deps.Config.Env, deps.Verifier))
	registerMeRoutes(secured)
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(secured)
	}
	if deps.EvidenceHandler != nil {
		deps.EvidenceHandler.RegisterRoutes(secured)
	}

	rules := map[string]middleware.RateLimitRule{}
	if deps.Config.AIRatePerMinute > 0 {
		rules[middleware.RateLimitGroupAI] = middleware.PerMinute(deps.Config.AIRatePerMinute, deps.Config.AIRateBurst)
	}
	ai := secured.Group("", middleware.RateLimit(middleware.RateLimitConfig{
		Rules:        rules,
		DefaultGroup: middleware.RateLimitGroupAI,
		Limiter:      deps.Limiter,
	}))
	if deps.RewriteHandler != nil {
		deps.RewriteHandler.RegisterRoutes(ai)
	}
	if deps.OptimizeHandler != nil {
		deps.OptimizeHandler.RegisterRoutes(ai)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
