package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/evidence"
	"portfolio-backend/internal/llm"
	"portfolio-backend/internal/review"
	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/structured"
)

const sampleLatex = "\\documentclass{article}\n\\begin{document}\n\\section{Summary}\nBackend engineer.\n\\section{Experience}\nBuilt APIs.\n\\end{document}\n"

func draftLatex(n int) string {
	return fmt.Sprintf("\\documentclass{article}\n\\begin{document}\n\\section{Summary}\nDraft %d.\n\\section{Experience}\nBuilt APIs.\n\\end{document}", n)
}

// fakeLLM answers writer, reviewer and humanizer requests from separate scripts.
type fakeLLM struct {
	mu             sync.Mutex
	writer         func(n int, req llm.Request) (string, error)
	humanizer      func(req llm.Request) (string, error)
	reviewer       func(n int) (string, error)
	writerCalls    int
	reviewCalls    int
	humanizerCalls int
	reqs           []llm.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	switch {
	case req.JSON:
		f.reviewCalls++
		n := f.reviewCalls
		f.mu.Unlock()
		return f.reviewer(n)
	case req.System == writerSystemPrompt:
		f.writerCalls++
		n := f.writerCalls
		f.mu.Unlock()
		if f.writer == nil {
			return draftLatex(n), nil
		}
		return f.writer(n, req)
	default:
		f.humanizerCalls++
		f.mu.Unlock()
		return f.humanizer(req)
	}
}

// scriptedReviewer returns one score per call; the last score repeats.
type scriptedReviewer struct {
	scores []float64
	err    error
	calls  int
	inputs []review.Input
	after  func(n int)
}

func (r *scriptedReviewer) Review(ctx context.Context, in review.Input) (review.Result, error) {
	r.calls++
	r.inputs = append(r.inputs, in)
	if r.after != nil {
		defer r.after(r.calls)
	}
	if r.err != nil {
		return review.Result{}, r.err
	}
	i := r.calls - 1
	if i >= len(r.scores) {
		i = len(r.scores) - 1
	}
	s := r.scores[i]
	return review.Result{
		Overall:         s,
		Scores:          map[string]float64{"impact": s},
		Verdict:         fmt.Sprintf("round %d", r.calls),
		Recommendations: []string{"quantify impact"},
	}, nil
}

func newDocs(t *testing.T, in documents.NewDocument) (*documents.Service, documents.Document) {
	t.Helper()
	docs := documents.NewService(documents.NewMemoryRepo())
	doc, err := docs.CreateWithInitialVersion(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateWithInitialVersion: %v", err)
	}
	return docs, doc
}

func newResume(t *testing.T) (*documents.Service, documents.Document) {
	t.Helper()
	return newDocs(t, documents.NewDocument{
		Kind:       documents.KindResume,
		Title:      "Test CV",
		JobContext: "Senior Go engineer, payments platform",
		TargetOrg:  "Acme",
		Content:    documents.Content{Latex: sampleLatex},
	})
}

func versions(t *testing.T, docs *documents.Service, id string) []documents.Version {
	t.Helper()
	vs, err := docs.ListVersions(context.Background(), id, 50)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	return vs
}

func TestConvergesAfterOneIteration(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{
		reviewer: func(int) (string, error) {
			return `{"scores":{"impact":9,"relevance":9,"clarity":9,"ats_keywords":9,"authenticity":9},"verdict":"Strong","recommendations":[]}`, nil
		},
	}
	orch := NewOrchestrator(docs, provider, review.NewService(provider, nil, "gpt-4o-mini"), nil, nil, Config{WriterModel: "gpt-4o-mini"})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID, TargetScore: 8.8, MaxIterations: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 1 || !res.Converged || res.Outcome != OutcomeConverged {
		t.Fatalf("expected convergence after one iteration, got %+v", res)
	}
	if res.Score != 9 {
		t.Fatalf("expected score 9, got %v", res.Score)
	}
	if provider.writerCalls != 1 || provider.reviewCalls != 1 {
		t.Fatalf("expected one writer and one reviewer call, got %d/%d", provider.writerCalls, provider.reviewCalls)
	}

	vs := versions(t, docs, doc.ID)
	if len(vs) != 2 {
		t.Fatalf("expected create + optimize versions, got %d", len(vs))
	}
	latest := vs[0]
	if latest.SourceTag != SourceTag || latest.ID != res.VersionID {
		t.Fatalf("unexpected latest version: %+v", latest)
	}
	if latest.Review == nil || !latest.Review.Converged || latest.Review.Iterations != 1 || latest.Review.Overall != 9 {
		t.Fatalf("unexpected review snapshot: %+v", latest.Review)
	}
	if latest.Content.Latex != draftLatex(1) {
		t.Fatalf("expected draft content committed, got %q", latest.Content.Latex)
	}
}

func TestBudgetExhaustedCommitsBestDraft(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{}
	reviewer := &scriptedReviewer{scores: []float64{6.0, 7.5, 7.0}}
	orch := NewOrchestrator(docs, provider, reviewer, nil, nil, Config{})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID, TargetScore: 9, MaxIterations: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Converged || res.Outcome != OutcomeExhausted || res.Iterations != 3 {
		t.Fatalf("expected exhausted after 3 iterations, got %+v", res)
	}
	if res.Score != 7.5 || res.Content.Latex != draftLatex(2) {
		t.Fatalf("expected best draft (2, 7.5), got %v %q", res.Score, res.Content.Latex)
	}
	if res.Feedback != "round 2\n- quantify impact" {
		t.Fatalf("unexpected feedback %q", res.Feedback)
	}
	vs := versions(t, docs, doc.ID)
	if len(vs) != 2 {
		t.Fatalf("expected exactly one new version, got %d total", len(vs))
	}
	if vs[0].Review == nil || vs[0].Review.Converged || vs[0].Review.Iterations != 3 {
		t.Fatalf("unexpected snapshot %+v", vs[0].Review)
	}
}

func TestTiedScoresKeepEarliestDraft(t *testing.T) {
	docs, doc := newResume(t)
	orch := NewOrchestrator(docs, &fakeLLM{}, &scriptedReviewer{scores: []float64{7, 7}}, nil, nil, Config{})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID, MaxIterations: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content.Latex != draftLatex(1) {
		t.Fatalf("expected first draft on tie, got %q", res.Content.Latex)
	}
}

func TestFeedbackFlowsIntoNextWriterCall(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{5, 9}}, nil, nil, Config{})

	if _, err := orch.Run(context.Background(), Params{DocumentID: doc.ID}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var writerReqs []llm.Request
	for _, r := range provider.reqs {
		if r.System == writerSystemPrompt {
			writerReqs = append(writerReqs, r)
		}
	}
	if len(writerReqs) != 2 {
		t.Fatalf("expected two writer calls, got %d", len(writerReqs))
	}
	if !strings.Contains(writerReqs[1].User, "round 1") || !strings.Contains(writerReqs[1].User, "Draft 1.") {
		t.Fatalf("second writer call should carry feedback and the previous draft: %s", writerReqs[1].User)
	}
	if !strings.Contains(writerReqs[0].User, "Senior Go engineer") {
		t.Fatalf("expected document job context as fallback context")
	}
}

func TestWriterFailureCommitsNothing(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{writer: func(int, llm.Request) (string, error) {
		return "", errors.New("openai http status 500: boom")
	}}
	reviewer := &scriptedReviewer{scores: []float64{9}}
	orch := NewOrchestrator(docs, provider, reviewer, nil, nil, Config{})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if !errors.Is(err, apperr.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if reviewer.calls != 0 {
		t.Fatalf("reviewer should not run after writer failure")
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected zero new versions, got %d total", len(vs))
	}
	got, _ := docs.Get(context.Background(), doc.ID)
	if got.Content.Latex != sampleLatex {
		t.Fatalf("content changed after failed run")
	}
}

func TestWriterLosingDocumentEnvironmentRetriedThenFails(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{writer: func(int, llm.Request) (string, error) {
		return "Here is the improved resume:\n\\section{Summary}\nBetter.", nil
	}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if !errors.Is(err, apperr.ErrParse) || !errors.Is(err, apperr.ErrProviderFailure) {
		t.Fatalf("expected parse failure marked as provider failure, got %v", err)
	}
	if provider.writerCalls != 2 {
		t.Fatalf("expected one retry, got %d writer calls", provider.writerCalls)
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected zero new versions")
	}
}

func TestWriterEmptyOutputRetried(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{writer: func(n int, _ llm.Request) (string, error) {
		if n == 1 {
			return "```latex\n```", nil
		}
		return "```latex\n" + draftLatex(n) + "\n```", nil
	}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content.Latex != draftLatex(2) {
		t.Fatalf("expected fenced retry output unwrapped, got %q", res.Content.Latex)
	}
}

func TestReviewerFailureCommitsNothing(t *testing.T) {
	docs, doc := newResume(t)
	reviewer := &scriptedReviewer{err: fmt.Errorf("reviewer output: %w", apperr.ErrParse)}
	orch := NewOrchestrator(docs, &fakeLLM{}, reviewer, nil, nil, Config{})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if !errors.Is(err, apperr.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected zero new versions")
	}
}

func TestStepTimeoutFailsRun(t *testing.T) {
	docs, doc := newResume(t)
	slow := llm.ProviderFunc(func(ctx context.Context, req llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	orch := NewOrchestrator(docs, slow, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{CallTimeout: 20 * time.Millisecond})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if !errors.Is(err, apperr.ErrProviderFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout step failure, got %v", err)
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected zero new versions")
	}
}

func TestCancellationStopsBeforeNextCall(t *testing.T) {
	docs, doc := newResume(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := &fakeLLM{}
	reviewer := &scriptedReviewer{scores: []float64{5}, after: func(int) { cancel() }}
	orch := NewOrchestrator(docs, provider, reviewer, nil, nil, Config{})

	_, err := orch.Run(ctx, Params{DocumentID: doc.ID, MaxIterations: 3})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if provider.writerCalls != 1 {
		t.Fatalf("expected loop to stop after first iteration, got %d writer calls", provider.writerCalls)
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected zero new versions")
	}
}

func TestHumanizerRunsOnceOnFinalContent(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{humanizer: func(req llm.Request) (string, error) {
		if !strings.Contains(req.User, "Draft 2.") {
			return "", errors.New("humanizer saw the wrong draft")
		}
		return strings.Replace(draftLatex(2), "Draft 2.", "Polished.", 1), nil
	}}
	on := true
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{6, 8, 7}}, nil, nil, Config{HumanizerModel: "claude-3-5-haiku-latest"})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID, MaxIterations: 3, Humanize: &on})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.humanizerCalls != 1 || !res.Humanized {
		t.Fatalf("expected one humanizer call, got %d", provider.humanizerCalls)
	}
	if !strings.Contains(res.Content.Latex, "Polished.") {
		t.Fatalf("expected humanized content, got %q", res.Content.Latex)
	}
	if res.Score != 8 {
		t.Fatalf("humanizer must not re-score, got %v", res.Score)
	}
	last := provider.reqs[len(provider.reqs)-1]
	if last.Model != "claude-3-5-haiku-latest" {
		t.Fatalf("expected humanizer model, got %q", last.Model)
	}
}

func TestHumanizerFailureAborts(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{humanizer: func(llm.Request) (string, error) {
		return "", errors.New("anthropic overloaded")
	}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{Humanize: true})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	var pe *apperr.ProviderError
	if !errors.As(err, &pe) || pe.Step != "humanizer" {
		t.Fatalf("expected humanizer step failure, got %v", err)
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected zero new versions")
	}
}

func TestRequestCanDisableConfiguredHumanizer(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{}
	off := false
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{Humanize: true})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID, Humanize: &off})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Humanized || provider.humanizerCalls != 0 {
		t.Fatalf("humanizer should be off")
	}
}

func TestProposalSectionsRoundTrip(t *testing.T) {
	docs, doc := newDocs(t, documents.NewDocument{
		Kind:  documents.KindProposal,
		Title: "GSoC",
		Content: documents.Content{Sections: []structured.Section{
			{Key: "abstract", Title: "Abstract", Content: "Add caching."},
			{Key: "timeline", Title: "Timeline", Content: "Twelve weeks."},
		}},
	})
	provider := &fakeLLM{writer: func(int, llm.Request) (string, error) {
		return "## Abstract\n\nAdd a TTL cache to the API.\n\n## Timeline\n\nWeeks 1-4: design.", nil
	}}
	reviewer := &scriptedReviewer{scores: []float64{9}}
	orch := NewOrchestrator(docs, provider, reviewer, nil, nil, Config{})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Content.Sections) != 2 || res.Content.Sections[0].Key != "abstract" || res.Content.Sections[1].Content != "Weeks 1-4: design." {
		t.Fatalf("unexpected sections %+v", res.Content.Sections)
	}
	if reviewer.inputs[0].Kind != "proposal" || !strings.HasPrefix(reviewer.inputs[0].Content, "## Abstract") {
		t.Fatalf("reviewer should see rendered proposal, got %+v", reviewer.inputs[0])
	}
	if !strings.Contains(provider.reqs[0].User, "Current proposal:") {
		t.Fatalf("expected proposal writer prompt")
	}
}

func TestProposalWithoutHeadingsIsRejected(t *testing.T) {
	docs, doc := newDocs(t, documents.NewDocument{
		Kind:    documents.KindProposal,
		Title:   "GSoC",
		Content: documents.Content{Sections: []structured.Section{{Title: "Abstract", Content: "Add caching."}}},
	})
	provider := &fakeLLM{writer: func(int, llm.Request) (string, error) {
		return "Add a cache.", nil
	}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func newProposal(t *testing.T, sections ...structured.Section) (*documents.Service, documents.Document) {
	t.Helper()
	return newDocs(t, documents.NewDocument{
		Kind:    documents.KindProposal,
		Title:   "GSoC",
		Content: documents.Content{Sections: sections},
	})
}

func TestProposalSubheadingsSurviveUnchangedDraft(t *testing.T) {
	docs, doc := newProposal(t,
		structured.Section{Key: "abstract", Title: "Abstract", Content: "Add caching."},
		structured.Section{Key: "timeline", Title: "Timeline", Content: "### Week 1\nDesign.\n\n### Week 2\nBuild."},
	)
	provider := &fakeLLM{writer: func(_ int, req llm.Request) (string, error) {
		parts := strings.SplitN(req.User, "Current proposal:\n", 2)
		return parts[len(parts)-1], nil
	}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !structured.SameKeys(res.Content.Sections, doc.Content.Sections) {
		t.Fatalf("section structure changed: %+v", res.Content.Sections)
	}
	if got := res.Content.Sections[1].Content; got != "### Week 1\nDesign.\n\n### Week 2\nBuild." {
		t.Fatalf("timeline body changed: %q", got)
	}
}

func TestProposalDraftDroppingSectionsIsRejected(t *testing.T) {
	docs, doc := newProposal(t,
		structured.Section{Key: "abstract", Title: "Abstract", Content: "Add caching."},
		structured.Section{Key: "timeline", Title: "Timeline", Content: "Twelve weeks."},
		structured.Section{Key: "about_me", Title: "About Me", Content: "Go contributor."},
	)
	provider := &fakeLLM{writer: func(int, llm.Request) (string, error) {
		return "## Abstract\n\nAdd a TTL cache.", nil
	}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{})

	_, err := orch.Run(context.Background(), Params{DocumentID: doc.ID})
	if !errors.Is(err, apperr.ErrParse) || !errors.Is(err, apperr.ErrProviderFailure) {
		t.Fatalf("expected writer parse failure, got %v", err)
	}
	if provider.writerCalls != writerAttempts {
		t.Fatalf("expected %d writer attempts, got %d", writerAttempts, provider.writerCalls)
	}
	if vs := versions(t, docs, doc.ID); len(vs) != 1 {
		t.Fatalf("expected no new version, got %d", len(vs))
	}
}

func TestValidationAndNotFoundBeforeProviderCalls(t *testing.T) {
	docs, _ := newResume(t)
	provider := &fakeLLM{}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, nil, nil, Config{})

	if _, err := orch.Run(context.Background(), Params{}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := orch.Run(context.Background(), Params{DocumentID: "missing"}); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(provider.reqs) != 0 {
		t.Fatalf("expected no provider calls, got %d", len(provider.reqs))
	}
}

func TestIterationBudgetIsClamped(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{1}}, nil, nil, Config{})

	res, err := orch.Run(context.Background(), Params{DocumentID: doc.ID, MaxIterations: 50, TargetScore: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != MaxIterations || provider.writerCalls != MaxIterations {
		t.Fatalf("expected %d iterations, got %d", MaxIterations, res.Iterations)
	}
}

func TestClampHelpers(t *testing.T) {
	iterCases := map[int]int{-2: 3, 0: 3, 1: 1, 4: 4, 6: 6, 7: 6, 1000: 6}
	for in, want := range iterCases {
		if got := ClampIterations(in); got != want {
			t.Fatalf("ClampIterations(%d) = %d, want %d", in, got, want)
		}
	}
	targetCases := []struct {
		in, want float64
	}{
		{0, 8.5}, {-1, 8.5}, {math.NaN(), 8.5}, {2, 6}, {7.25, 7.25}, {9.9, 9.8}, {math.Inf(1), 9.8},
	}
	for _, tc := range targetCases {
		if got := ClampTarget(tc.in); got != tc.want {
			t.Fatalf("ClampTarget(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

type staticEvidence []evidence.Snippet

func (s staticEvidence) Lookup(context.Context, string, int) ([]evidence.Snippet, error) {
	return s, nil
}

func TestEvidenceIncludedInWriterPrompt(t *testing.T) {
	docs, doc := newResume(t)
	provider := &fakeLLM{}
	ev := staticEvidence{{Source: "talk.pdf", Text: "Cut p99 latency by 40%"}}
	orch := NewOrchestrator(docs, provider, &scriptedReviewer{scores: []float64{9}}, ev, nil, Config{})

	if _, err := orch.Run(context.Background(), Params{DocumentID: doc.ID}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(provider.reqs[0].User, "- [talk.pdf] Cut p99 latency by 40%") {
		t.Fatalf("expected evidence in writer prompt: %s", provider.reqs[0].User)
	}
}
