package documents

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu       sync.RWMutex
	docs     map[string]Document
	versions map[string][]Version // documentId -> versions, oldest first
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:     make(map[string]Document),
		versions: make(map[string][]Version),
	}
}

// CreateWithVersion stores a new document and its first version.
func (r *MemoryRepo) CreateWithVersion(ctx context.Context, doc Document, v Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.IsDefault {
		r.clearDefaultLocked(doc.Kind, doc.ID)
	}
	r.docs[doc.ID] = cloneDocument(doc)
	r.versions[doc.ID] = append(r.versions[doc.ID], cloneVersion(v))
	return nil
}

// Get returns a document by ID.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List returns documents newest-updated first, optionally filtered by kind.
func (r *MemoryRepo) List(ctx context.Context, kind Kind, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	docs := make([]Document, 0, len(r.docs))
	for _, d := range r.docs {
		if kind != "" && d.Kind != kind {
			continue
		}
		docs = append(docs, cloneDocument(d))
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end], nil
}

// UpdateWithVersion applies mutate under the write lock and commits the
// document and version together.
func (r *MemoryRepo) UpdateWithVersion(ctx context.Context, id string, mutate MutateFunc) (Document, Version, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, Version{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.docs[id]
	if !ok {
		return Document{}, Version{}, ErrNotFound
	}
	doc := cloneDocument(current)
	v, err := mutate(&doc)
	if err != nil {
		return Document{}, Version{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, Version{}, err
	}
	doc.ID = current.ID
	doc.VersionCount = current.VersionCount + 1
	v.DocumentID = doc.ID
	if doc.IsDefault && !current.IsDefault {
		r.clearDefaultLocked(doc.Kind, doc.ID)
	}
	r.docs[id] = cloneDocument(doc)
	r.versions[id] = append(r.versions[id], cloneVersion(v))
	return doc, v, nil
}

// GetVersion returns a version only when it belongs to documentID.
func (r *MemoryRepo) GetVersion(ctx context.Context, documentID, versionID string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[documentID] {
		if v.ID == versionID {
			return cloneVersion(v), nil
		}
	}
	return Version{}, ErrNotFound
}

// ListVersions returns up to limit versions, newest first.
func (r *MemoryRepo) ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.versions[documentID]
	out := make([]Version, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneVersion(all[i]))
	}
	return out, nil
}

func (r *MemoryRepo) clearDefaultLocked(kind Kind, keepID string) {
	for id, d := range r.docs {
		if id != keepID && d.Kind == kind && d.IsDefault {
			d.IsDefault = false
			r.docs[id] = d
		}
	}
}

var _ Repo = (*MemoryRepo)(nil)
