package documents

import (
	"time"

	"portfolio-backend/internal/structured"
)

// Kind distinguishes the document families the service manages.
type Kind string

const (
	KindResume   Kind = "resume"
	KindProposal Kind = "proposal"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k == KindResume || k == KindProposal
}

// Source tags recorded on versions.
const (
	TagCreate  = "create"
	TagManual  = "manual"
	TagRestore = "restore"
)

// DefaultTone is used when neither the request nor the document names one.
const DefaultTone = "professional"

// Content is the raw body of a document: LaTeX for résumés, ordered
// sections for proposals.
type Content = structured.Source

// Meta carries the descriptive fields that steer generation.
type Meta struct {
	Tone       string `json:"tone"`
	TargetOrg  string `json:"targetOrg,omitempty"`
	JobContext string `json:"jobContext,omitempty"`
}

// Document is the current, mutable state of a résumé or proposal.
type Document struct {
	ID           string
	Kind         Kind
	Title        string
	IsDefault    bool
	Meta         Meta
	Content      Content
	Structured   structured.Document
	VersionCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReviewSnapshot records the critique attached to a generated version.
type ReviewSnapshot struct {
	Overall         float64            `json:"overall"`
	Scores          map[string]float64 `json:"scores"`
	Verdict         string             `json:"verdict"`
	Recommendations []string           `json:"recommendations"`
	Iterations      int                `json:"iterations,omitempty"`
	Converged       bool               `json:"converged"`
}

// Version is an immutable snapshot of a document's title, tone and content.
type Version struct {
	ID         string
	DocumentID string
	Title      string
	Tone       string
	Content    Content
	SourceTag  string
	Review     *ReviewSnapshot
	CreatedAt  time.Time
}

// NewDocument describes a document to create.
type NewDocument struct {
	Kind       Kind
	Title      string
	Tone       string
	TargetOrg  string
	JobContext string
	Content    Content
	IsDefault  bool
}

// Patch lists the fields an update may change; nil fields are left alone.
// Review is recorded on the resulting version only.
type Patch struct {
	Title      *string
	Tone       *string
	TargetOrg  *string
	JobContext *string
	Content    *Content
	IsDefault  *bool
	Review     *ReviewSnapshot
}

func cloneDocument(d Document) Document {
	d.Content = d.Content.Clone()
	d.Structured = d.Structured.Clone()
	return d
}

func cloneVersion(v Version) Version {
	v.Content = v.Content.Clone()
	if v.Review != nil {
		r := *v.Review
		r.Recommendations = append([]string(nil), v.Review.Recommendations...)
		if v.Review.Scores != nil {
			r.Scores = make(map[string]float64, len(v.Review.Scores))
			for k, s := range v.Review.Scores {
				r.Scores[k] = s
			}
		}
		v.Review = &r
	}
	return v
}
