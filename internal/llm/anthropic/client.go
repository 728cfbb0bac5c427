// Package anthropic adapts the Anthropic Messages API to llm.Provider.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"portfolio-backend/internal/llm"
	"portfolio-backend/internal/shared/telemetry"
)

const defaultMaxTokens = 4096

// Client implements llm.Provider for Claude models.
type Client struct {
	client *sdk.Client
}

// NewClient creates a client with the given API key. Extra options are
// passed to the SDK, e.g. option.WithBaseURL in tests.
func NewClient(apiKey string, opts ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := sdk.NewClient(all...)
	return &Client{client: &client}, nil
}

// Supports reports whether model is a Claude model.
func Supports(model string) bool {
	return llm.HasPrefix("claude-")(model)
}

// Generate sends req as a single user turn and joins the text blocks of the reply.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if !Supports(req.Model) {
		return "", fmt.Errorf("model '%s' is not supported by anthropic provider", req.Model)
	}
	params := buildParams(req)

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	telemetry.Info("llm.response", map[string]any{
		"provider":          "anthropic",
		"model":             req.Model,
		"duration_ms":       time.Since(start).Milliseconds(),
		"stop_reason":       string(message.StopReason),
		"prompt_tokens":     message.Usage.InputTokens,
		"completion_tokens": message.Usage.OutputTokens,
	})

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("anthropic response empty content")
	}
	return out, nil
}

func buildParams(req llm.Request) sdk.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	user := req.User
	if req.JSON {
		user += "\n\nRespond with a single JSON object and nothing else."
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(req.Temperature),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []sdk.TextBlockParam{{Type: "text", Text: req.System}}
	}
	return params
}

var _ llm.Provider = (*Client)(nil)
