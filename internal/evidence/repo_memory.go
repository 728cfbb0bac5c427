package evidence

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo keeps evidence in process memory.
type MemoryRepo struct {
	mu       sync.RWMutex
	uploads  []Upload
	snippets []Snippet
}

// NewMemoryRepo returns an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Save(ctx context.Context, upload Upload, snippets []Snippet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, upload)
	r.snippets = append(r.snippets, snippets...)
	return nil
}

func (r *MemoryRepo) Search(ctx context.Context, terms []string, limit int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	all := make([]Snippet, len(r.snippets))
	copy(all, r.snippets)
	r.mu.RUnlock()
	return Rank(all, terms, limit), nil
}

func (r *MemoryRepo) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Upload, len(r.uploads))
	copy(out, r.uploads)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = clampLimit(limit, 50, 200); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
