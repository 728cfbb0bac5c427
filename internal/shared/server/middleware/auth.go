package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/auth"
	"portfolio-backend/internal/shared/server/respond"
)

const adminIDKey = "adminId"

// TokenVerifier checks an admin bearer token.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// AdminAuth requires a valid admin bearer token. With no verifier in dev,
// the X-Admin-Id header is trusted instead.
func AdminAuth(env string, verifier TokenVerifier) gin.HandlerFunc {
	devHeader := verifier == nil && strings.EqualFold(strings.TrimSpace(env), "dev")
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		if devHeader {
			adminID := strings.TrimSpace(c.GetHeader("X-Admin-Id"))
			if adminID == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
				return
			}
			c.Set(adminIDKey, adminID)
			c.Next()
			return
		}
		if verifier == nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "admin auth is not configured", nil)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		c.Set(adminIDKey, claims.Subject)
		c.Next()
	}
}

// AdminIDFromContext fetches the admin ID set by AdminAuth.
func AdminIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(adminIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
