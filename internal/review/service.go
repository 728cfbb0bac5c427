// Package review scores document drafts against a per-kind rubric.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portfolio-backend/internal/llm"
	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/telemetry"
)

const (
	reviewerTemperature = 0.2
	reviewerMaxTokens   = 1200
)

// Input is one draft to score.
type Input struct {
	Kind    string
	Content string
	Context string
	Model   string
}

// Service calls the reviewer model and parses its scores.
type Service struct {
	provider llm.Provider
	rubric   *Rubric
	model    string
}

// NewService creates a reviewer using the embedded rubric when r is nil.
func NewService(p llm.Provider, r *Rubric, defaultModel string) *Service {
	if r == nil {
		r = DefaultRubric()
	}
	return &Service{provider: p, rubric: r, model: defaultModel}
}

// Rubric exposes the rubric in use.
func (s *Service) Rubric() *Rubric { return s.rubric }

// Review scores in.Content. Unparsable output is retried once; a second
// failure returns an error wrapping apperr.ErrParse.
func (s *Service) Review(ctx context.Context, in Input) (Result, error) {
	dims := s.rubric.Dimensions(in.Kind)
	if len(dims) == 0 {
		return Result{}, apperr.Validation("kind", fmt.Sprintf("no rubric for kind %q", in.Kind))
	}
	if strings.TrimSpace(in.Content) == "" {
		return Result{}, apperr.Validation("content", "content is required")
	}
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = s.model
	}

	req := llm.Request{
		Model:       model,
		System:      "You are a strict reviewer. Respond with a single JSON object.",
		User:        s.prompt(in, dims),
		Temperature: reviewerTemperature,
		MaxTokens:   reviewerMaxTokens,
		JSON:        true,
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		raw, err := s.provider.Generate(ctx, req)
		if err != nil {
			return Result{}, apperr.Provider("reviewer", err)
		}
		res, err := ParseResult(raw, s.rubric, in.Kind)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, apperr.ErrParse) {
			return Result{}, err
		}
		lastErr = err
		telemetry.Warn("review.parse_failed", map[string]any{
			"attempt": attempt,
			"model":   model,
			"kind":    in.Kind,
			"error":   err.Error(),
		})
	}
	return Result{}, fmt.Errorf("reviewer output: %w", lastErr)
}

func (s *Service) prompt(in Input, dims []Dimension) string {
	tmpl, _ := llm.PromptTemplate(llm.PromptReviewer)
	var lines, keys []string
	for _, d := range dims {
		lines = append(lines, fmt.Sprintf("- %s: %s", d.Key, d.Description))
		keys = append(keys, fmt.Sprintf("%q: 0", d.Key))
	}
	return llm.Fill(tmpl, map[string]string{
		"KIND":                in.Kind,
		"DIMENSIONS":          strings.Join(lines, "\n"),
		"SCORE_KEYS":          strings.Join(keys, ", "),
		"MAX_RECOMMENDATIONS": fmt.Sprint(s.rubric.MaxRecommendations),
		"CONTEXT":             in.Context,
		"CONTENT":             in.Content,
	})
}
