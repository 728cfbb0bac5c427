package evidence

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"portfolio-backend/internal/extract"
	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/cache"
	"portfolio-backend/internal/shared/storage/object"
	"portfolio-backend/internal/shared/telemetry"
)

const (
	defaultLookupLimit = 5
	maxLookupLimit     = 20
	cacheEntries       = 256
)

// Service ingests evidence files and answers lookups.
type Service struct {
	Repo  Repo
	Store object.Store
	Now   func() time.Time
	NewID func() string

	cache *cache.TTL[[]Snippet]
}

// NewService wires a service with a lookup cache of the given TTL.
func NewService(repo Repo, store object.Store, ttl time.Duration) *Service {
	s := &Service{
		Repo:  repo,
		Store: store,
		Now:   time.Now,
		NewID: func() string { return uuid.NewString() },
	}
	if ttl > 0 {
		s.cache = cache.NewTTL[[]Snippet](ttl, cacheEntries, func() time.Time { return s.Now() })
	}
	return s
}

// Ingest stores the original file, extracts its text and saves paragraph snippets.
func (s *Service) Ingest(ctx context.Context, ownerID, fileName string, r io.Reader) (Upload, []Snippet, error) {
	if strings.TrimSpace(fileName) == "" {
		return Upload{}, nil, apperr.Validation("file", "file name is required")
	}
	if s.Store == nil {
		return Upload{}, nil, fmt.Errorf("evidence object store not configured")
	}

	obj, err := s.Store.Save(ctx, ownerID, fileName, r)
	if err != nil {
		return Upload{}, nil, fmt.Errorf("store evidence: %w", err)
	}
	if obj.Size == 0 {
		return Upload{}, nil, apperr.Validation("file", "file is empty")
	}

	text, err := extract.ExtractText(ctx, s.Store, obj.Key, obj.MimeType, fileName)
	if err != nil {
		if strings.Contains(err.Error(), "unsupported mime type") {
			return Upload{}, nil, apperr.Validation("file", "unsupported file type; upload PDF, DOCX or plain text")
		}
		return Upload{}, nil, err
	}
	chunks := Chunk(text)
	if len(chunks) == 0 {
		return Upload{}, nil, apperr.Validation("file", "no text could be extracted")
	}

	now := s.Now().UTC()
	upload := Upload{
		ID:               s.NewID(),
		OwnerID:          ownerID,
		FileName:         fileName,
		MimeType:         obj.MimeType,
		SizeBytes:        obj.Size,
		StorageKey:       obj.Key,
		ExtractedTextKey: obj.Key + ".extracted.txt",
		CreatedAt:        now,
	}
	snippets := make([]Snippet, 0, len(chunks))
	for i, c := range chunks {
		snippets = append(snippets, Snippet{
			ID:        s.NewID(),
			UploadID:  upload.ID,
			Source:    fileName,
			Position:  i,
			Text:      c,
			CreatedAt: now,
		})
	}
	if err := s.Repo.Save(ctx, upload, snippets); err != nil {
		return Upload{}, nil, err
	}
	if s.cache != nil {
		s.cache.Purge()
	}

	telemetry.Info("evidence.ingested", map[string]any{
		"upload_id": upload.ID,
		"admin_id":  ownerID,
		"mime_type": upload.MimeType,
		"snippets":  len(snippets),
	})
	return upload, snippets, nil
}

// Lookup returns up to limit snippets relevant to query.
func (s *Service) Lookup(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = defaultLookupLimit
	}
	if limit > maxLookupLimit {
		limit = maxLookupLimit
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return []Snippet{}, nil
	}

	load := func(ctx context.Context) ([]Snippet, error) {
		out, err := s.Repo.Search(ctx, terms, limit)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []Snippet{}
		}
		return out, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	key := fmt.Sprintf("%d|%s", limit, strings.Join(terms, " "))
	return s.cache.GetOrLoad(ctx, key, load)
}

// ListUploads returns recent uploads.
func (s *Service) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	return s.Repo.ListUploads(ctx, limit)
}

var _ Source = (*Service)(nil)
