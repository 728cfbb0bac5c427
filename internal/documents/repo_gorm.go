package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"portfolio-backend/internal/structured"
)

type documentRow struct {
	ID           string `gorm:"primaryKey"`
	Kind         string `gorm:"index;not null"`
	Title        string `gorm:"not null"`
	IsDefault    bool   `gorm:"not null;default:false"`
	Meta         datatypes.JSONType[Meta]
	Content      datatypes.JSONType[Content]
	Structured   datatypes.JSONType[structured.Document]
	VersionCount int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"index;not null;autoUpdateTime:false"`
}

func (documentRow) TableName() string { return "documents" }

type versionRow struct {
	Seq        uint   `gorm:"primaryKey;autoIncrement"`
	ID         string `gorm:"uniqueIndex;not null"`
	DocumentID string `gorm:"index:idx_versions_doc_created,priority:1;not null"`
	Title      string `gorm:"not null"`
	Tone       string
	Content    datatypes.JSONType[Content]
	SourceTag  string `gorm:"not null"`
	Review     datatypes.JSON // nullable ReviewSnapshot
	CreatedAt  time.Time `gorm:"index:idx_versions_doc_created,priority:2;not null;autoCreateTime:false"`
}

func (versionRow) TableName() string { return "document_versions" }

// GormRepo implements Repo on an embedded SQLite database through gorm.
type GormRepo struct {
	DB *gorm.DB
}

// NewGormRepo migrates the document tables and returns the repository.
func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&documentRow{}, &versionRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate documents: %w", err)
	}
	return &GormRepo{DB: db}, nil
}

// CreateWithVersion stores a document and its first version in one transaction.
func (r *GormRepo) CreateWithVersion(ctx context.Context, doc Document, v Version) error {
	docRow, err := toDocumentRow(doc)
	if err != nil {
		return err
	}
	verRow, err := toVersionRow(v)
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if doc.IsDefault {
			if err := gormClearDefault(tx, doc.Kind, doc.ID); err != nil {
				return err
			}
		}
		if err := tx.Create(&docRow).Error; err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if err := tx.Create(&verRow).Error; err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
}

// Get returns a document by ID.
func (r *GormRepo) Get(ctx context.Context, id string) (Document, error) {
	var row documentRow
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return row.toDomain()
}

// List returns documents newest-updated first.
func (r *GormRepo) List(ctx context.Context, kind Kind, limit, offset int) ([]Document, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	q := r.DB.WithContext(ctx).Model(&documentRow{})
	if kind != "" {
		q = q.Where("kind = ?", string(kind))
	}
	var rows []documentRow
	if err := q.Order("updated_at DESC").Order("id").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// UpdateWithVersion applies mutate inside a transaction. SQLite serializes
// writers, so the read-modify-write cannot interleave with another update.
func (r *GormRepo) UpdateWithVersion(ctx context.Context, id string, mutate MutateFunc) (Document, Version, error) {
	var (
		outDoc Document
		outVer Version
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		current, err := row.toDomain()
		if err != nil {
			return err
		}
		doc := cloneDocument(current)
		v, err := mutate(&doc)
		if err != nil {
			return err
		}
		doc.ID = current.ID
		doc.VersionCount = current.VersionCount + 1
		v.DocumentID = doc.ID

		if doc.IsDefault && !current.IsDefault {
			if err := gormClearDefault(tx, doc.Kind, doc.ID); err != nil {
				return err
			}
		}
		docRow, err := toDocumentRow(doc)
		if err != nil {
			return err
		}
		if err := tx.Save(&docRow).Error; err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		verRow, err := toVersionRow(v)
		if err != nil {
			return err
		}
		if err := tx.Create(&verRow).Error; err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		outDoc, outVer = doc, v
		return nil
	})
	if err != nil {
		return Document{}, Version{}, err
	}
	return outDoc, outVer, nil
}

// GetVersion fetches a version by the (document, version) pair.
func (r *GormRepo) GetVersion(ctx context.Context, documentID, versionID string) (Version, error) {
	var row versionRow
	err := r.DB.WithContext(ctx).
		Where("id = ? AND document_id = ?", versionID, documentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Version{}, ErrNotFound
		}
		return Version{}, err
	}
	return row.toDomain()
}

// ListVersions lists versions newest first.
func (r *GormRepo) ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	var rows []versionRow
	err := r.DB.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Order("seq DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0, len(rows))
	for _, row := range rows {
		v, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func gormClearDefault(tx *gorm.DB, kind Kind, keepID string) error {
	err := tx.Model(&documentRow{}).
		Where("kind = ? AND id <> ? AND is_default = ?", string(kind), keepID, true).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("clear default: %w", err)
	}
	return nil
}

func toDocumentRow(doc Document) (documentRow, error) {
	return documentRow{
		ID:           doc.ID,
		Kind:         string(doc.Kind),
		Title:        doc.Title,
		IsDefault:    doc.IsDefault,
		Meta:         datatypes.NewJSONType(doc.Meta),
		Content:      datatypes.NewJSONType(doc.Content),
		Structured:   datatypes.NewJSONType(doc.Structured),
		VersionCount: doc.VersionCount,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (row documentRow) toDomain() (Document, error) {
	return Document{
		ID:           row.ID,
		Kind:         Kind(row.Kind),
		Title:        row.Title,
		IsDefault:    row.IsDefault,
		Meta:         row.Meta.Data(),
		Content:      row.Content.Data(),
		Structured:   row.Structured.Data(),
		VersionCount: row.VersionCount,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}, nil
}

func toVersionRow(v Version) (versionRow, error) {
	row := versionRow{
		ID:         v.ID,
		DocumentID: v.DocumentID,
		Title:      v.Title,
		Tone:       v.Tone,
		Content:    datatypes.NewJSONType(v.Content),
		SourceTag:  v.SourceTag,
		CreatedAt:  v.CreatedAt,
	}
	if v.Review != nil {
		review, err := json.Marshal(v.Review)
		if err != nil {
			return versionRow{}, fmt.Errorf("encode review: %w", err)
		}
		row.Review = datatypes.JSON(review)
	}
	return row, nil
}

func (row versionRow) toDomain() (Version, error) {
	v := Version{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		Title:      row.Title,
		Tone:       row.Tone,
		Content:    row.Content.Data(),
		SourceTag:  row.SourceTag,
		CreatedAt:  row.CreatedAt.UTC(),
	}
	if len(row.Review) > 0 && string(row.Review) != "null" {
		var snap ReviewSnapshot
		if err := json.Unmarshal(row.Review, &snap); err != nil {
			return Version{}, fmt.Errorf("decode review: %w", err)
		}
		v.Review = &snap
	}
	return v, nil
}

var _ Repo = (*GormRepo)(nil)
