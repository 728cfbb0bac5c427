package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func TestProviderWrapsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := Provider("writer", cause)
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to unwrap, got %v", err)
	}
	if got := err.Error(); got != "generation provider failed (writer): context deadline exceeded" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestProviderKeepsClassifiedErrors(t *testing.T) {
	for _, in := range []error{ErrEmptyRewrite, ErrParse, fmt.Errorf("review: %w", ErrParse)} {
		if out := Provider("reviewer", in); out != in {
			t.Fatalf("expected %v unchanged, got %v", in, out)
		}
	}
	if Provider("writer", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestKindHelpers(t *testing.T) {
	if !IsValidation(fmt.Errorf("wrap: %w", Validation("title", "is required"))) {
		t.Fatalf("expected validation error")
	}
	if !IsNotFound(NotFound("document", "doc-1")) {
		t.Fatalf("expected not found error")
	}
	if !IsSectionNotFound(SectionNotFound(" skills ")) {
		t.Fatalf("expected section not found error")
	}
	if got := SectionNotFound(" skills ").Error(); got != `section "skills" not found` {
		t.Fatalf("unexpected message %q", got)
	}
	if got := NotFound("version", "").Error(); got != "version not found" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestFromValidationNamesFirstField(t *testing.T) {
	req := struct {
		Title string `json:"title"`
		Kind  string `json:"kind"`
	}{}
	err := FromValidation(validation.ValidateStruct(&req,
		validation.Field(&req.Title, validation.Required),
		validation.Field(&req.Kind, validation.Required),
	))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
	if ve.Field != "kind" {
		t.Fatalf("expected first sorted field kind, got %q", ve.Field)
	}
	if FromValidation(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
