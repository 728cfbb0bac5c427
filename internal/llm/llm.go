package llm

import (
	"context"
	"errors"
)

// Request is a single text generation call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks providers that support it for a JSON object response.
	JSON bool
	// WebSearch asks providers that support it to ground the answer with search.
	WebSearch bool
}

// Provider generates text for a request. Implementations must honor ctx
// cancellation and deadlines.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f ProviderFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrNotConfigured is returned by the placeholder provider.
var ErrNotConfigured = errors.New("llm provider not configured")

// PlaceholderProvider stands in when no API key is configured.
type PlaceholderProvider struct{}

// Generate returns ErrNotConfigured.
func (PlaceholderProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", ErrNotConfigured
}
