// Package rewrite regenerates a single document section in a chosen tone.
package rewrite

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/evidence"
	"portfolio-backend/internal/llm"
	"portfolio-backend/internal/llm/lenient"
	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/metrics"
	"portfolio-backend/internal/shared/telemetry"
)

const (
	rewriteTemperature = 0.5
	rewriteMaxTokens   = 1500
	evidenceLimit      = 5
	maxAttempts        = 2

	// SourceTagPrefix prefixes the source tag of versions committed by Apply.
	SourceTagPrefix = "rewrite_section_"
)

const systemPrompt = "You edit résumés and project proposals. Preserve every fact. " +
	"Never fabricate employers, titles, dates, metrics, links or credentials. " +
	"If the evidence does not support a claim, leave it out."

// DocumentStore is the slice of the version store the rewriter needs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (documents.Document, error)
	PatchSection(ctx context.Context, id, sectionKey, content, sourceTag string) (documents.Document, documents.Version, error)
}

// Request asks for one section to be rewritten.
type Request struct {
	DocumentID  string `json:"documentId"`
	SectionKey  string `json:"sectionKey"`
	Context     string `json:"context"`
	Tone        string `json:"tone"`
	Instruction string `json:"instruction"`
	Model       string `json:"model"`
	Apply       bool   `json:"apply"`
}

// Result is the rewritten section body, plus the committed version when applied.
type Result struct {
	DocumentID string
	SectionKey string
	Title      string
	Tone       string
	Content    string
	VersionID  string
	Applied    bool
}

// Service rewrites sections through a generation provider.
type Service struct {
	Docs     DocumentStore
	Provider llm.Provider
	Evidence evidence.Source
	Tones    *Tones
	Model    string
}

// NewService wires a rewriter. A nil evidence source means no evidence.
func NewService(docs DocumentStore, p llm.Provider, ev evidence.Source, tones *Tones, model string) *Service {
	if ev == nil {
		ev = evidence.None{}
	}
	if tones == nil {
		tones = DefaultTones()
	}
	return &Service{Docs: docs, Provider: p, Evidence: ev, Tones: tones, Model: model}
}

// RewriteSection generates a new body for req.SectionKey. Empty output is
// retried once before failing with apperr.ErrEmptyRewrite.
func (s *Service) RewriteSection(ctx context.Context, req Request) (Result, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.SectionKey = strings.TrimSpace(req.SectionKey)
	err := validation.ValidateStruct(&req,
		validation.Field(&req.DocumentID, validation.Required.Error("documentId is required")),
		validation.Field(&req.SectionKey, validation.Required.Error("sectionKey is required")),
		validation.Field(&req.Instruction, validation.RuneLength(0, 2000)),
		validation.Field(&req.Context, validation.RuneLength(0, 20000)),
	)
	if err != nil {
		return Result{}, apperr.FromValidation(err)
	}

	doc, err := s.Docs.Get(ctx, req.DocumentID)
	if err != nil {
		return Result{}, err
	}
	section, ok := doc.Structured.Find(req.SectionKey)
	if !ok {
		return Result{}, apperr.SectionNotFound(req.SectionKey)
	}

	tone := s.Tones.Resolve(req.Tone, doc.Meta.Tone)
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.Model
	}
	format := lenient.FormatLatex
	if doc.Kind == documents.KindProposal {
		format = lenient.FormatMarkdown
	}

	snippets := s.lookupEvidence(ctx, section.Title+" "+req.Context+" "+req.Instruction)
	prompt := s.prompt(doc, section.Title, section.Content, tone, req, snippets)

	var content string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.IncRewrite(true)
			return Result{}, err
		}
		raw, err := s.Provider.Generate(ctx, llm.Request{
			Model:       model,
			System:      systemPrompt,
			User:        prompt,
			Temperature: rewriteTemperature,
			MaxTokens:   rewriteMaxTokens,
		})
		if err != nil {
			metrics.IncRewrite(true)
			return Result{}, apperr.Provider("rewrite", err)
		}
		content = stripHeading(lenient.CleanProse(raw, format), section.Title)
		if content != "" {
			break
		}
		telemetry.Warn("rewrite.empty_output", map[string]any{
			"document_id": doc.ID,
			"section":     section.Key,
			"attempt":     attempt,
			"model":       model,
		})
	}
	if content == "" {
		metrics.IncRewrite(true)
		return Result{}, fmt.Errorf("section %s: %w", section.Key, apperr.ErrEmptyRewrite)
	}
	metrics.IncRewrite(false)

	res := Result{
		DocumentID: doc.ID,
		SectionKey: section.Key,
		Title:      section.Title,
		Tone:       tone,
		Content:    content,
	}
	if req.Apply {
		_, v, err := s.Docs.PatchSection(ctx, doc.ID, section.Key, content, SourceTagPrefix+section.Key)
		if err != nil {
			return Result{}, err
		}
		res.VersionID = v.ID
		res.Applied = true
	}

	telemetry.Info("rewrite.completed", map[string]any{
		"document_id": doc.ID,
		"section":     section.Key,
		"tone":        tone,
		"evidence":    len(snippets),
		"applied":     res.Applied,
		"version_id":  res.VersionID,
	})
	return res, nil
}

func (s *Service) lookupEvidence(ctx context.Context, query string) []evidence.Snippet {
	snippets, err := s.Evidence.Lookup(ctx, query, evidenceLimit)
	if err != nil {
		telemetry.Warn("rewrite.evidence_failed", map[string]any{"error": err.Error()})
		return nil
	}
	return snippets
}

func (s *Service) prompt(doc documents.Document, title, body, tone string, req Request, snippets []evidence.Snippet) string {
	tmpl, _ := llm.PromptTemplate(llm.PromptSectionRewrite)
	formatRule := "Keep valid LaTeX. Reuse the commands and environments already in the section and escape special characters."
	if doc.Kind == documents.KindProposal {
		formatRule = "Use plain markdown paragraphs or bullet lists. Do not add headings."
	}
	target := req.Context
	if strings.TrimSpace(target) == "" {
		target = doc.Meta.JobContext
	}
	return llm.Fill(tmpl, map[string]string{
		"KIND":            string(doc.Kind),
		"SECTION_TITLE":   title,
		"FORMAT_RULE":     formatRule,
		"TONE":            tone,
		"TONE_GUIDANCE":   s.Tones.GuidanceFor(tone),
		"INSTRUCTION":     req.Instruction,
		"CONTEXT":         target,
		"EVIDENCE":        evidence.Format(snippets),
		"SECTION_CONTENT": body,
	})
}

var headingLineRe = regexp.MustCompile(`^(?:\\(?:section|cvsection)\*?\{([^}\n]*)\}|#{1,3}[ \t]+(.+))[ \t]*(?:\n|$)`)

// stripHeading drops a repeated heading for title from the start of out.
func stripHeading(out, title string) string {
	m := headingLineRe.FindStringSubmatch(out)
	if m == nil {
		return out
	}
	got := strings.TrimSpace(m[1] + m[2])
	if !strings.EqualFold(strings.Trim(got, "*_ "), strings.TrimSpace(title)) {
		return out
	}
	return strings.TrimSpace(out[len(m[0]):])
}
