package documents

import "context"

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// MutateFunc edits the locked current document in place and returns the
// version to record for the edit.
type MutateFunc func(doc *Document) (Version, error)

// Repo defines persistence for documents and their version history.
// Version rows are append-only.
type Repo interface {
	// CreateWithVersion stores a new document together with its first version.
	CreateWithVersion(ctx context.Context, doc Document, v Version) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, kind Kind, limit, offset int) ([]Document, error)
	// UpdateWithVersion loads the document, applies mutate and persists the
	// document and the returned version atomically. Nothing is written when
	// mutate fails.
	UpdateWithVersion(ctx context.Context, id string, mutate MutateFunc) (Document, Version, error)
	GetVersion(ctx context.Context, documentID, versionID string) (Version, error)
	// ListVersions returns versions newest first.
	ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
