// Package evidence stores facts extracted from the owner's own materials and
// serves them to generation prompts.
package evidence

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Upload is an ingested source file.
type Upload struct {
	ID               string
	OwnerID          string
	FileName         string
	MimeType         string
	SizeBytes        int64
	StorageKey       string
	ExtractedTextKey string
	CreatedAt        time.Time
}

// Snippet is one paragraph of evidence text.
type Snippet struct {
	ID        string    `json:"id"`
	UploadID  string    `json:"uploadId"`
	Source    string    `json:"source"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Source looks up snippets relevant to a query. No matches is an empty
// slice, not an error.
type Source interface {
	Lookup(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Format renders snippets as a bullet list for prompts.
func Format(snippets []Snippet) string {
	var b strings.Builder
	for _, s := range snippets {
		fmt.Fprintf(&b, "- [%s] %s\n", s.Source, s.Text)
	}
	return strings.TrimSpace(b.String())
}

// None is a Source with no evidence.
type None struct{}

func (None) Lookup(context.Context, string, int) ([]Snippet, error) { return []Snippet{}, nil }
