package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: apperr.Validation("title", "is required"), status: http.StatusBadRequest, code: "validation_error"},
		{name: "not found", err: fmt.Errorf("get: %w", apperr.NotFound("document", "doc-1")), status: http.StatusNotFound, code: "not_found"},
		{name: "section", err: apperr.SectionNotFound("awards"), status: http.StatusUnprocessableEntity, code: "section_not_found"},
		{name: "empty rewrite", err: apperr.ErrEmptyRewrite, status: http.StatusBadGateway, code: "generation_invalid"},
		{name: "parse", err: fmt.Errorf("review: %w", apperr.ErrParse), status: http.StatusBadGateway, code: "generation_invalid"},
		{name: "provider", err: apperr.Provider("writer", errors.New("503")), status: http.StatusBadGateway, code: "provider_error"},
		{name: "provider timeout", err: apperr.Provider("writer", context.DeadlineExceeded), status: http.StatusGatewayTimeout, code: "provider_timeout"},
		{name: "other", err: errors.New("db down"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := Classify(tt.err)
			if status != tt.status || code != tt.code {
				t.Fatalf("Classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestFromErrorHidesProviderDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		FromError(c, apperr.Provider("writer", errors.New("api key sk-secret rejected")))
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "provider_error" {
		t.Fatalf("unexpected code %q", body.Error.Code)
	}
	if body.Error.Message != "Generation provider failed" {
		t.Fatalf("provider detail leaked: %q", body.Error.Message)
	}
}
