package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log line.
var logContextKeys = map[string]string{
	"documentId": "document_id",
	"versionId":  "version_id",
	"jobId":      "job_id",
	"outcome":    "outcome",
}

// Logging emits one structured line per request. Preflight requests are skipped.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"route":       c.FullPath(),
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"admin_id":    AdminIDFromContext(c),
			"client_ip":   c.ClientIP(),
		}
		for key, field := range logContextKeys {
			if v := c.GetString(key); v != "" {
				fields[field] = v
			}
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			telemetry.Error("http.request", fields)
		case status >= http.StatusBadRequest:
			telemetry.Warn("http.request", fields)
		default:
			telemetry.Info("http.request", fields)
		}
	}
}
