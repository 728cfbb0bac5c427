package documents

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/telemetry"
	"portfolio-backend/internal/structured"
)

// Service owns document state and its append-only version history. Every
// successful write records exactly one version.
type Service struct {
	Repo  Repo
	Now   func() time.Time
	NewID func() string
}

// NewService constructs a Service with the wall clock and random IDs.
func NewService(repo Repo) *Service {
	return &Service{
		Repo:  repo,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// CreateWithInitialVersion stores a document and its first version tagged "create".
func (s *Service) CreateWithInitialVersion(ctx context.Context, in NewDocument) (Document, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Tone = strings.TrimSpace(in.Tone)
	if in.Kind == "" {
		in.Kind = KindResume
	}
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required.Error("title is required"), validation.RuneLength(1, 200)),
		validation.Field(&in.Kind, validation.In(KindResume, KindProposal).Error("kind must be resume or proposal")),
	)
	if err != nil {
		return Document{}, apperr.FromValidation(err)
	}
	if in.Tone == "" {
		in.Tone = DefaultTone
	}

	now := s.now()
	content := normalizeContent(in.Kind, in.Content)
	doc := Document{
		ID:        s.newID(),
		Kind:      in.Kind,
		Title:     in.Title,
		IsDefault: in.IsDefault,
		Meta: Meta{
			Tone:       in.Tone,
			TargetOrg:  strings.TrimSpace(in.TargetOrg),
			JobContext: strings.TrimSpace(in.JobContext),
		},
		Content:      content,
		Structured:   structured.EnsureStructured(content, nil),
		VersionCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	v := snapshot(doc, s.newID(), TagCreate, nil, now)

	if err := s.Repo.CreateWithVersion(ctx, doc, v); err != nil {
		return Document{}, err
	}
	telemetry.Info("document.created", map[string]any{
		"document_id": doc.ID,
		"kind":        doc.Kind,
		"version_id":  v.ID,
	})
	return doc, nil
}

// UpdateAndCreateVersion applies patch and records a version with sourceTag
// ("manual" when empty). Document and version are written atomically.
func (s *Service) UpdateAndCreateVersion(ctx context.Context, id string, patch Patch, sourceTag string) (Document, Version, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, Version{}, apperr.Validation("documentId", "is required")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return Document{}, Version{}, apperr.Validation("title", "cannot be blank")
	}
	sourceTag = strings.TrimSpace(sourceTag)
	if sourceTag == "" {
		sourceTag = TagManual
	}

	doc, v, err := s.Repo.UpdateWithVersion(ctx, id, func(doc *Document) (Version, error) {
		applyPatch(doc, patch)
		now := s.now()
		doc.UpdatedAt = now
		return snapshot(*doc, s.newID(), sourceTag, patch.Review, now), nil
	})
	if err != nil {
		return Document{}, Version{}, mapNotFound(err, "document", id)
	}
	telemetry.Info("document.version_created", map[string]any{
		"document_id": doc.ID,
		"version_id":  v.ID,
		"source_tag":  v.SourceTag,
		"versions":    doc.VersionCount,
	})
	return doc, v, nil
}

// PatchSection replaces the body of one section and records a version with
// sourceTag. The section is resolved against the content current at commit
// time; an unknown key fails with a SectionNotFoundError and writes nothing.
func (s *Service) PatchSection(ctx context.Context, id, sectionKey, content, sourceTag string) (Document, Version, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, Version{}, apperr.Validation("documentId", "is required")
	}
	if strings.TrimSpace(sectionKey) == "" {
		return Document{}, Version{}, apperr.Validation("sectionKey", "is required")
	}
	sourceTag = strings.TrimSpace(sourceTag)
	if sourceTag == "" {
		sourceTag = TagManual
	}

	doc, v, err := s.Repo.UpdateWithVersion(ctx, id, func(doc *Document) (Version, error) {
		next, err := structured.ApplySectionContent(doc.Content, sectionKey, content)
		if err != nil {
			return Version{}, err
		}
		doc.Content = normalizeContent(doc.Kind, next)
		doc.Structured = structured.EnsureStructured(doc.Content, nil)
		now := s.now()
		doc.UpdatedAt = now
		return snapshot(*doc, s.newID(), sourceTag, nil, now), nil
	})
	if err != nil {
		return Document{}, Version{}, mapNotFound(err, "document", id)
	}
	telemetry.Info("document.version_created", map[string]any{
		"document_id": doc.ID,
		"version_id":  v.ID,
		"source_tag":  v.SourceTag,
		"section":     sectionKey,
		"versions":    doc.VersionCount,
	})
	return doc, v, nil
}

// RestoreVersion copies a prior version's title, tone and content onto the
// document and records a new version tagged "restore". History is never rewritten.
func (s *Service) RestoreVersion(ctx context.Context, documentID, versionID string) (Document, Version, error) {
	documentID = strings.TrimSpace(documentID)
	versionID = strings.TrimSpace(versionID)
	if documentID == "" {
		return Document{}, Version{}, apperr.Validation("documentId", "is required")
	}
	if versionID == "" {
		return Document{}, Version{}, apperr.Validation("versionId", "is required")
	}

	prior, err := s.Repo.GetVersion(ctx, documentID, versionID)
	if err != nil {
		return Document{}, Version{}, mapNotFound(err, "version", versionID)
	}

	title := prior.Title
	tone := prior.Tone
	content := prior.Content.Clone()
	return s.UpdateAndCreateVersion(ctx, documentID, Patch{
		Title:   &title,
		Tone:    &tone,
		Content: &content,
	}, TagRestore)
}

// ListVersions returns the newest versions first. limit defaults to 20 and is capped at 100.
func (s *Service) ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, apperr.Validation("documentId", "is required")
	}
	if _, err := s.Repo.Get(ctx, documentID); err != nil {
		return nil, mapNotFound(err, "document", documentID)
	}
	return s.Repo.ListVersions(ctx, documentID, clampLimit(limit))
}

// GetVersion returns a version of documentID.
func (s *Service) GetVersion(ctx context.Context, documentID, versionID string) (Version, error) {
	v, err := s.Repo.GetVersion(ctx, strings.TrimSpace(documentID), strings.TrimSpace(versionID))
	if err != nil {
		return Version{}, mapNotFound(err, "version", versionID)
	}
	return v, nil
}

// Get returns the current document with its structured projection refreshed.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	doc, err := s.Repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Document{}, mapNotFound(err, "document", id)
	}
	doc.Structured = structured.EnsureStructured(doc.Content, &doc.Structured)
	return doc, nil
}

// List returns documents of kind (all kinds when empty).
func (s *Service) List(ctx context.Context, kind Kind, limit, offset int) ([]Document, error) {
	if kind != "" && !kind.Valid() {
		return nil, apperr.Validation("kind", "must be resume or proposal")
	}
	return s.Repo.List(ctx, kind, limit, offset)
}

func applyPatch(doc *Document, p Patch) {
	if p.Title != nil {
		doc.Title = strings.TrimSpace(*p.Title)
	}
	if p.Tone != nil {
		if tone := strings.TrimSpace(*p.Tone); tone != "" {
			doc.Meta.Tone = tone
		}
	}
	if p.TargetOrg != nil {
		doc.Meta.TargetOrg = strings.TrimSpace(*p.TargetOrg)
	}
	if p.JobContext != nil {
		doc.Meta.JobContext = strings.TrimSpace(*p.JobContext)
	}
	if p.IsDefault != nil {
		doc.IsDefault = *p.IsDefault
	}
	if p.Content != nil {
		doc.Content = normalizeContent(doc.Kind, p.Content.Clone())
	}
	doc.Structured = structured.EnsureStructured(doc.Content, &doc.Structured)
}

func normalizeContent(kind Kind, c Content) Content {
	if kind == KindProposal && len(c.Sections) > 0 {
		return Content{Sections: structured.NormalizeSections(c.Sections)}
	}
	return c
}

func snapshot(doc Document, id, tag string, review *ReviewSnapshot, at time.Time) Version {
	v := Version{
		ID:         id,
		DocumentID: doc.ID,
		Title:      doc.Title,
		Tone:       doc.Meta.Tone,
		Content:    doc.Content.Clone(),
		SourceTag:  tag,
		CreatedAt:  at,
	}
	if review != nil {
		v.Review = cloneVersion(Version{Review: review}).Review
	}
	return v
}

func mapNotFound(err error, resource, id string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(resource, strings.TrimSpace(id))
	}
	return err
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
