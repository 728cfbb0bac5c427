package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"portfolio-backend/internal/structured"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, kind, title, is_default, meta, content, structured, version_count, created_at, updated_at`

const versionColumns = `id, document_id, title, tone, content, source_tag, review, created_at`

// CreateWithVersion inserts the document and its first version in one transaction.
func (r *PGRepo) CreateWithVersion(ctx context.Context, doc Document, v Version) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if doc.IsDefault {
		if err = clearDefault(ctx, tx, doc.Kind, doc.ID); err != nil {
			return err
		}
	}

	meta, content, structuredJSON, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	const insertDoc = `
INSERT INTO documents (
    id,
    kind,
    title,
    is_default,
    meta,
    content,
    structured,
    version_count,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err = tx.ExecContext(ctx, insertDoc,
		doc.ID,
		string(doc.Kind),
		doc.Title,
		doc.IsDefault,
		meta,
		content,
		structuredJSON,
		doc.VersionCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if err = insertVersion(ctx, tx, v); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns a document by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List lists documents newest-updated first.
func (r *PGRepo) List(ctx context.Context, kind Kind, limit, offset int) ([]Document, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE ($1 = '' OR kind = $1)
ORDER BY updated_at DESC, id
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, string(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// UpdateWithVersion locks the document row, applies mutate and writes the
// document and the new version in one transaction.
func (r *PGRepo) UpdateWithVersion(ctx context.Context, id string, mutate MutateFunc) (doc Document, v Version, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`
	current, err := scanDocument(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, Version{}, ErrNotFound
		}
		return Document{}, Version{}, err
	}

	doc = cloneDocument(current)
	v, err = mutate(&doc)
	if err != nil {
		return Document{}, Version{}, err
	}
	doc.ID = current.ID
	doc.VersionCount = current.VersionCount + 1
	v.DocumentID = doc.ID

	if doc.IsDefault && !current.IsDefault {
		if err = clearDefault(ctx, tx, doc.Kind, doc.ID); err != nil {
			return Document{}, Version{}, err
		}
	}

	meta, content, structuredJSON, err := encodeDocument(doc)
	if err != nil {
		return Document{}, Version{}, err
	}
	const update = `
UPDATE documents
SET title = $1, is_default = $2, meta = $3, content = $4, structured = $5, version_count = $6, updated_at = $7
WHERE id = $8`
	if _, err = tx.ExecContext(ctx, update,
		doc.Title,
		doc.IsDefault,
		meta,
		content,
		structuredJSON,
		doc.VersionCount,
		doc.UpdatedAt,
		doc.ID,
	); err != nil {
		return Document{}, Version{}, fmt.Errorf("update document: %w", err)
	}

	if err = insertVersion(ctx, tx, v); err != nil {
		return Document{}, Version{}, err
	}
	if err = tx.Commit(); err != nil {
		return Document{}, Version{}, fmt.Errorf("commit: %w", err)
	}
	return doc, v, nil
}

// GetVersion fetches a version by the (document, version) pair.
func (r *PGRepo) GetVersion(ctx context.Context, documentID, versionID string) (Version, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE id = $1 AND document_id = $2`
	v, err := scanVersion(r.DB.QueryRowContext(ctx, query, versionID, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, err
	}
	return v, nil
}

// ListVersions lists versions newest first.
func (r *PGRepo) ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	limit = clampLimit(limit)
	query := `SELECT ` + versionColumns + `
FROM document_versions
WHERE document_id = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc            Document
		kind           string
		meta           []byte
		content        []byte
		structuredJSON []byte
	)
	if err := row.Scan(
		&doc.ID,
		&kind,
		&doc.Title,
		&doc.IsDefault,
		&meta,
		&content,
		&structuredJSON,
		&doc.VersionCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.Kind = Kind(kind)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Meta); err != nil {
			return Document{}, fmt.Errorf("decode meta: %w", err)
		}
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &doc.Content); err != nil {
			return Document{}, fmt.Errorf("decode content: %w", err)
		}
	}
	if len(structuredJSON) > 0 {
		var s structured.Document
		if err := json.Unmarshal(structuredJSON, &s); err == nil {
			doc.Structured = s
		}
	}
	return doc, nil
}

func scanVersion(row rowScanner) (Version, error) {
	var (
		v       Version
		content []byte
		review  []byte
	)
	if err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.Title,
		&v.Tone,
		&content,
		&v.SourceTag,
		&review,
		&v.CreatedAt,
	); err != nil {
		return Version{}, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &v.Content); err != nil {
			return Version{}, fmt.Errorf("decode version content: %w", err)
		}
	}
	if len(review) > 0 && string(review) != "null" {
		var snap ReviewSnapshot
		if err := json.Unmarshal(review, &snap); err != nil {
			return Version{}, fmt.Errorf("decode review: %w", err)
		}
		v.Review = &snap
	}
	return v, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, v Version) error {
	content, err := json.Marshal(v.Content)
	if err != nil {
		return fmt.Errorf("encode version content: %w", err)
	}
	var review any
	if v.Review != nil {
		b, err := json.Marshal(v.Review)
		if err != nil {
			return fmt.Errorf("encode review: %w", err)
		}
		review = b
	}
	const query = `
INSERT INTO document_versions (
    id,
    document_id,
    title,
    tone,
    content,
    source_tag,
    review,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, query,
		v.ID,
		v.DocumentID,
		v.Title,
		v.Tone,
		content,
		v.SourceTag,
		review,
		v.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func clearDefault(ctx context.Context, tx *sql.Tx, kind Kind, keepID string) error {
	const query = `UPDATE documents SET is_default = FALSE WHERE kind = $1 AND id <> $2 AND is_default`
	if _, err := tx.ExecContext(ctx, query, string(kind), keepID); err != nil {
		return fmt.Errorf("clear default: %w", err)
	}
	return nil
}

func encodeDocument(doc Document) (meta, content, structuredJSON []byte, err error) {
	if meta, err = json.Marshal(doc.Meta); err != nil {
		return nil, nil, nil, fmt.Errorf("encode meta: %w", err)
	}
	if content, err = json.Marshal(doc.Content); err != nil {
		return nil, nil, nil, fmt.Errorf("encode content: %w", err)
	}
	if structuredJSON, err = json.Marshal(doc.Structured); err != nil {
		return nil, nil, nil, fmt.Errorf("encode structured: %w", err)
	}
	return meta, content, structuredJSON, nil
}

var _ Repo = (*PGRepo)(nil)
