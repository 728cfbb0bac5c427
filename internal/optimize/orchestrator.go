package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/evidence"
	"portfolio-backend/internal/llm"
	"portfolio-backend/internal/llm/lenient"
	"portfolio-backend/internal/review"
	"portfolio-backend/internal/rewrite"
	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/metrics"
	"portfolio-backend/internal/shared/telemetry"
	"portfolio-backend/internal/structured"
)

const (
	writerTemperature    = 0.6
	writerMaxTokens      = 6000
	humanizerTemperature = 0.7
	evidenceLimit        = 6
	writerAttempts       = 2

	defaultCallTimeout = 90 * time.Second
)

const writerSystemPrompt = "You are a careful editor. Preserve every fact in the source document. " +
	"Never fabricate employers, titles, dates, metrics, links or credentials."

// Outcome is the terminal state of a successful run.
type Outcome string

const (
	OutcomeConverged Outcome = "converged"
	OutcomeExhausted Outcome = "budget_exhausted"
)

// Run states, as logged on optimize.status transitions.
const (
	stateInit      = "init"
	stateIterate   = "iterate"
	stateConverged = "converged"
	stateExhausted = "budget_exhausted"
	stateFailed    = "failed"
)

// DocumentStore is the slice of the version store the loop needs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (documents.Document, error)
	UpdateAndCreateVersion(ctx context.Context, id string, patch documents.Patch, sourceTag string) (documents.Document, documents.Version, error)
}

// Reviewer scores a draft.
type Reviewer interface {
	Review(ctx context.Context, in review.Input) (review.Result, error)
}

// Config holds defaults applied when a request leaves a field empty.
type Config struct {
	WriterModel    string
	ReviewerModel  string
	HumanizerModel string
	Humanize       bool
	// CallTimeout bounds each writer, reviewer and humanizer step.
	CallTimeout time.Duration
}

// Result is the outcome of a successful run.
type Result struct {
	DocumentID string
	VersionID  string
	Content    documents.Content
	Score      float64
	Feedback   string
	Iterations int
	Converged  bool
	Humanized  bool
	Outcome    Outcome
	Review     review.Result
}

// Orchestrator drives the writer, reviewer and humanizer steps and commits
// one version per successful run.
type Orchestrator struct {
	Docs     DocumentStore
	Provider llm.Provider
	Reviewer Reviewer
	Evidence evidence.Source
	Tones    *rewrite.Tones
	Config   Config
	Now      func() time.Time
}

// NewOrchestrator wires the loop. A nil evidence source means no evidence.
func NewOrchestrator(docs DocumentStore, p llm.Provider, rv Reviewer, ev evidence.Source, tones *rewrite.Tones, cfg Config) *Orchestrator {
	if ev == nil {
		ev = evidence.None{}
	}
	if tones == nil {
		tones = rewrite.DefaultTones()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Orchestrator{Docs: docs, Provider: p, Reviewer: rv, Evidence: ev, Tones: tones, Config: cfg}
}

type draft struct {
	content   documents.Content
	review    review.Result
	iteration int
}

type run struct {
	params    Params
	doc       documents.Document
	tone      string
	evidence  string
	humanize  bool
	writer    string
	reviewer  string
	humanizer string
	state     string
}

// Run optimizes the document named by p.DocumentID. On any failure nothing
// is committed and the stored document is left as it was.
func (o *Orchestrator) Run(ctx context.Context, p Params) (Result, error) {
	p = p.normalized()
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	doc, err := o.Docs.Get(ctx, p.DocumentID)
	if err != nil {
		return Result{}, err
	}

	start := o.now()
	metrics.IncOptimizeStarted()
	r := &run{
		params:    p,
		doc:       doc,
		tone:      o.Tones.Resolve(p.Tone, doc.Meta.Tone),
		humanize:  o.Config.Humanize,
		writer:    firstNonEmpty(p.WriterModel, o.Config.WriterModel),
		reviewer:  firstNonEmpty(p.ReviewerModel, o.Config.ReviewerModel),
		humanizer: firstNonEmpty(p.HumanizerModel, o.Config.HumanizerModel, o.Config.WriterModel),
		state:     stateInit,
	}
	if p.Humanize != nil {
		r.humanize = *p.Humanize
	}
	if p.Context == "" {
		r.params.Context = doc.Meta.JobContext
	}

	res, err := o.loop(ctx, r)
	metrics.ObserveOptimizeDurationMs(float64(o.now().Sub(start).Milliseconds()))
	if err != nil {
		metrics.IncOptimizeFailed()
		o.transition(r, stateFailed, map[string]any{"error": err.Error()})
		return Result{}, err
	}
	metrics.ObserveOptimizeIterations(res.Iterations)
	if res.Converged {
		metrics.IncOptimizeConverged()
	} else {
		metrics.IncOptimizeExhausted()
	}
	return res, nil
}

func (o *Orchestrator) loop(ctx context.Context, r *run) (Result, error) {
	r.evidence = evidence.Format(o.lookupEvidence(ctx, r))
	o.transition(r, stateIterate, map[string]any{
		"max_iterations": r.params.MaxIterations,
		"target_score":   r.params.TargetScore,
	})

	current := r.doc.Content.Clone()
	feedback := ""
	var best *draft
	converged := false
	iterations := 0

	for i := 1; i <= r.params.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		content, err := o.write(ctx, r, current, feedback)
		if err != nil {
			return Result{}, err
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rv, err := o.review(ctx, r, content)
		if err != nil {
			return Result{}, err
		}

		iterations = i
		if best == nil || rv.Overall > best.review.Overall {
			best = &draft{content: content, review: rv, iteration: i}
		}
		feedback = rv.Feedback()
		current = content

		telemetry.Info("optimize.iteration", map[string]any{
			"request_id":  r.params.RequestID,
			"document_id": r.doc.ID,
			"iteration":   i,
			"score":       rv.Overall,
			"target":      r.params.TargetScore,
			"best_score":  best.review.Overall,
		})
		if rv.Overall >= r.params.TargetScore {
			converged = true
			break
		}
	}

	final := best.content
	humanized := false
	if r.humanize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		out, err := o.humanizeDraft(ctx, r, final)
		if err != nil {
			return Result{}, err
		}
		final = out
		humanized = true
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	snap := &documents.ReviewSnapshot{
		Overall:         best.review.Overall,
		Scores:          best.review.Scores,
		Verdict:         best.review.Verdict,
		Recommendations: best.review.Recommendations,
		Iterations:      iterations,
		Converged:       converged,
	}
	_, v, err := o.Docs.UpdateAndCreateVersion(ctx, r.doc.ID, documents.Patch{Content: &final, Review: snap}, SourceTag)
	if err != nil {
		return Result{}, err
	}

	outcome, state := OutcomeExhausted, stateExhausted
	if converged {
		outcome, state = OutcomeConverged, stateConverged
	}
	o.transition(r, state, map[string]any{
		"iteration":      iterations,
		"score":          best.review.Overall,
		"best_iteration": best.iteration,
		"version_id":     v.ID,
		"humanized":      humanized,
	})

	return Result{
		DocumentID: r.doc.ID,
		VersionID:  v.ID,
		Content:    v.Content,
		Score:      best.review.Overall,
		Feedback:   best.review.Feedback(),
		Iterations: iterations,
		Converged:  converged,
		Humanized:  humanized,
		Outcome:    outcome,
		Review:     best.review,
	}, nil
}

func (o *Orchestrator) lookupEvidence(ctx context.Context, r *run) []evidence.Snippet {
	query := strings.TrimSpace(r.params.Context + " " + r.doc.Meta.TargetOrg)
	if query == "" {
		return nil
	}
	snippets, err := o.Evidence.Lookup(ctx, query, evidenceLimit)
	if err != nil {
		telemetry.Warn("optimize.evidence_failed", map[string]any{
			"request_id":  r.params.RequestID,
			"document_id": r.doc.ID,
			"error":       err.Error(),
		})
		return nil
	}
	return snippets
}

// write runs the writer step. Output that is empty or loses the document's
// structure is retried once.
func (o *Orchestrator) write(ctx context.Context, r *run, current documents.Content, feedback string) (documents.Content, error) {
	tmpl, _ := llm.PromptTemplate(writerPrompt(r.doc.Kind, current))
	prompt := llm.Fill(tmpl, map[string]string{
		"TONE":          r.tone,
		"TONE_GUIDANCE": o.Tones.GuidanceFor(r.tone),
		"CONTEXT":       r.params.Context,
		"TARGET_ORG":    r.doc.Meta.TargetOrg,
		"FEEDBACK":      feedback,
		"EVIDENCE":      r.evidence,
		"CONTENT":       structured.Render(current),
	})
	req := llm.Request{
		Model:       r.writer,
		System:      writerSystemPrompt,
		User:        prompt,
		Temperature: writerTemperature,
		MaxTokens:   writerMaxTokens,
	}

	var lastErr error
	for attempt := 1; attempt <= writerAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return documents.Content{}, err
		}
		raw, err := o.generate(ctx, req)
		if err != nil {
			return documents.Content{}, stepError("writer", err)
		}
		out, err := parseDraft(raw, r.doc.Kind, current)
		if err == nil {
			return out, nil
		}
		lastErr = err
		telemetry.Warn("optimize.writer_output_rejected", map[string]any{
			"request_id":  r.params.RequestID,
			"document_id": r.doc.ID,
			"attempt":     attempt,
			"error":       err.Error(),
		})
	}
	return documents.Content{}, stepError("writer", lastErr)
}

func (o *Orchestrator) review(ctx context.Context, r *run, content documents.Content) (review.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.Config.CallTimeout)
	defer cancel()
	res, err := o.Reviewer.Review(callCtx, review.Input{
		Kind:    string(r.doc.Kind),
		Content: structured.Render(content),
		Context: r.params.Context,
		Model:   r.reviewer,
	})
	if err != nil {
		if ctx.Err() != nil {
			return review.Result{}, ctx.Err()
		}
		return review.Result{}, stepError("reviewer", err)
	}
	return res, nil
}

func (o *Orchestrator) humanizeDraft(ctx context.Context, r *run, content documents.Content) (documents.Content, error) {
	tmpl, _ := llm.PromptTemplate(llm.PromptHumanizer)
	rule := "return the complete LaTeX document with every command, environment and section unchanged."
	if content.IsSectioned() {
		rule = "return markdown with one \"## Title\" heading per section, same titles, same order."
	}
	raw, err := o.generate(ctx, llm.Request{
		Model: r.humanizer,
		User: llm.Fill(tmpl, map[string]string{
			"KIND":           string(r.doc.Kind),
			"STRUCTURE_RULE": rule,
			"TONE":           r.tone,
			"CONTENT":        structured.Render(content),
		}),
		Temperature: humanizerTemperature,
		MaxTokens:   writerMaxTokens,
	})
	if err != nil {
		return documents.Content{}, stepError("humanizer", err)
	}
	out, err := parseDraft(raw, r.doc.Kind, content)
	if err != nil {
		return documents.Content{}, stepError("humanizer", err)
	}
	return out, nil
}

// generate makes one provider call bounded by the configured step timeout.
func (o *Orchestrator) generate(ctx context.Context, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.Config.CallTimeout)
	defer cancel()
	out, err := o.Provider.Generate(callCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%v: %w", err, context.DeadlineExceeded)
		}
		return "", err
	}
	return out, nil
}

func (o *Orchestrator) transition(r *run, to string, extra map[string]any) {
	fields := map[string]any{
		"request_id":  r.params.RequestID,
		"document_id": r.doc.ID,
		"from":        r.state,
		"to":          to,
	}
	for k, v := range extra {
		fields[k] = v
	}
	if to == stateFailed {
		telemetry.Warn("optimize.status", fields)
	} else {
		telemetry.Info("optimize.status", fields)
	}
	r.state = to
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func writerPrompt(kind documents.Kind, current documents.Content) string {
	if kind == documents.KindProposal || current.IsSectioned() {
		return llm.PromptWriterProposal
	}
	return llm.PromptWriterResume
}

// parseDraft turns writer output into content shaped like current. Sectioned
// content must come back with the same sections in the same order; a LaTeX
// document must keep its document environment.
func parseDraft(raw string, kind documents.Kind, current documents.Content) (documents.Content, error) {
	if current.IsSectioned() {
		text := lenient.CleanProse(raw, lenient.FormatMarkdown)
		if text == "" {
			return documents.Content{}, apperr.ErrEmptyRewrite
		}
		sections := structured.ParseRendered(text, current.Sections)
		if sections == nil {
			return documents.Content{}, fmt.Errorf("no section headings in output: %w", apperr.ErrParse)
		}
		if want := structured.NormalizeSections(current.Sections); !structured.SameKeys(sections, want) {
			return documents.Content{}, fmt.Errorf("output sections %v do not match %v: %w",
				sectionKeys(sections), sectionKeys(want), apperr.ErrParse)
		}
		return documents.Content{Sections: sections}, nil
	}

	format := lenient.FormatLatex
	if kind == documents.KindProposal {
		format = lenient.FormatMarkdown
	}
	text := lenient.CleanProse(raw, format)
	if text == "" {
		return documents.Content{}, apperr.ErrEmptyRewrite
	}
	if structured.HasDocumentEnvironment(current.Latex) && !structured.HasDocumentEnvironment(text) {
		return documents.Content{}, fmt.Errorf("output lost the document environment: %w", apperr.ErrParse)
	}
	return documents.Content{Latex: text}, nil
}

func sectionKeys(sections []structured.Section) []string {
	keys := make([]string, len(sections))
	for i, s := range sections {
		keys[i] = s.Key
	}
	return keys
}

// stepError marks err as a failure of step. Caller cancellation passes
// through untouched.
func stepError(step string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var pe *apperr.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &apperr.ProviderError{Step: step, Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
