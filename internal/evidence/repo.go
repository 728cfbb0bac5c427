package evidence

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("evidence not found")

// Repo persists uploads and their snippets.
type Repo interface {
	// Save stores an upload and its snippets atomically.
	Save(ctx context.Context, upload Upload, snippets []Snippet) error
	// Search returns snippets matching any term, best first.
	Search(ctx context.Context, terms []string, limit int) ([]Snippet, error)
	ListUploads(ctx context.Context, limit int) ([]Upload, error)
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
