// Package apperr holds the error kinds shared by the document services and
// their HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyRewrite means generation produced nothing usable after cleanup.
	ErrEmptyRewrite = errors.New("generated content is empty")
	// ErrParse means generation output did not have the expected structure.
	ErrParse = errors.New("generated content could not be parsed")
	// ErrProviderFailure marks any failure of a generation call.
	ErrProviderFailure = errors.New("generation provider failed")
)

// ValidationError reports a request that failed input checks.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports a missing document or version.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// SectionNotFoundError reports a section key that matches nothing in a document.
type SectionNotFoundError struct {
	Key string
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section %q not found", e.Key)
}

// ProviderError wraps the underlying cause of a failed generation call.
type ProviderError struct {
	Step string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s: %v", ErrProviderFailure, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", ErrProviderFailure, e.Step, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }

// Validation builds a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// SectionNotFound builds a SectionNotFoundError.
func SectionNotFound(key string) error {
	return &SectionNotFoundError{Key: strings.TrimSpace(key)}
}

// Provider wraps err as a provider failure for the named step. Errors already
// classified as provider failures, empty rewrites or parse failures pass through.
func Provider(step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProviderFailure) || errors.Is(err, ErrEmptyRewrite) || errors.Is(err, ErrParse) {
		return err
	}
	return &ProviderError{Step: step, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsSectionNotFound reports whether err is a SectionNotFoundError.
func IsSectionNotFound(err error) bool {
	var target *SectionNotFoundError
	return errors.As(err, &target)
}
