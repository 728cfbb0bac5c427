// Package optimize runs the writer/reviewer loop that rewrites a whole
// document until its review score reaches a target or the iteration budget
// runs out.
package optimize

import (
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"portfolio-backend/internal/shared/apperr"
)

const (
	DefaultMaxIterations = 3
	MinIterations        = 1
	MaxIterations        = 6

	DefaultTargetScore = 8.5
	MinTargetScore     = 6.0
	MaxTargetScore     = 9.8

	// SourceTag marks versions committed by the loop.
	SourceTag = "ai_loop_optimize"
)

// Params configures one optimization run. Zero values take defaults;
// out-of-range iteration counts and targets are clamped, never rejected.
type Params struct {
	DocumentID     string  `json:"documentId"`
	Context        string  `json:"context"`
	Tone           string  `json:"tone"`
	TargetScore    float64 `json:"targetScore"`
	MaxIterations  int     `json:"maxIterations"`
	WriterModel    string  `json:"writerModel"`
	ReviewerModel  string  `json:"reviewerModel"`
	HumanizerModel string  `json:"humanizerModel"`
	Humanize       *bool   `json:"humanize,omitempty"`
	RequestID      string  `json:"requestId,omitempty"`
}

func (p Params) validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.DocumentID, validation.Required.Error("documentId is required")),
		validation.Field(&p.Context, validation.RuneLength(0, 20000)),
		validation.Field(&p.Tone, validation.RuneLength(0, 64)),
	)
	return apperr.FromValidation(err)
}

func (p Params) normalized() Params {
	p.DocumentID = strings.TrimSpace(p.DocumentID)
	p.Context = strings.TrimSpace(p.Context)
	p.Tone = strings.TrimSpace(p.Tone)
	p.WriterModel = strings.TrimSpace(p.WriterModel)
	p.ReviewerModel = strings.TrimSpace(p.ReviewerModel)
	p.HumanizerModel = strings.TrimSpace(p.HumanizerModel)
	p.MaxIterations = ClampIterations(p.MaxIterations)
	p.TargetScore = ClampTarget(p.TargetScore)
	return p
}

// ClampIterations maps n into [MinIterations, MaxIterations]; zero or
// negative means the default.
func ClampIterations(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxIterations
	case n > MaxIterations:
		return MaxIterations
	}
	return n
}

// ClampTarget maps v into [MinTargetScore, MaxTargetScore]; zero, negative
// or NaN means the default.
func ClampTarget(v float64) float64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return DefaultTargetScore
	case math.IsInf(v, 1) || v > MaxTargetScore:
		return MaxTargetScore
	case v < MinTargetScore:
		return MinTargetScore
	}
	return v
}
