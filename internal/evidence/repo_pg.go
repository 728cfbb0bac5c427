package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// candidateFactor widens the SQL prefilter so Rank has enough rows to order.
const candidateFactor = 5

// PGRepo stores evidence in Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Save(ctx context.Context, upload Upload, snippets []Snippet) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evidence_uploads (id, owner_id, file_name, mime_type, size_bytes, storage_key, extracted_text_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		upload.ID, upload.OwnerID, upload.FileName, upload.MimeType, upload.SizeBytes,
		upload.StorageKey, nullString(upload.ExtractedTextKey), upload.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evidence upload: %w", err)
	}

	for _, s := range snippets {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO evidence_snippets (id, upload_id, source, position, text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.UploadID, s.Source, s.Position, s.Text, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert evidence snippet: %w", err)
		}
	}
	return tx.Commit()
}

func (r *PGRepo) Search(ctx context.Context, terms []string, limit int) ([]Snippet, error) {
	limit = clampLimit(limit, 5, 50)

	query := `SELECT id, upload_id, source, position, text, created_at FROM evidence_snippets`
	args := make([]any, 0, len(terms)+1)
	if len(terms) > 0 {
		clauses := make([]string, 0, len(terms))
		for _, t := range terms {
			args = append(args, "%"+escapeLike(t)+"%")
			clauses = append(clauses, fmt.Sprintf("text ILIKE $%d", len(args)))
		}
		query += ` WHERE ` + strings.Join(clauses, " OR ")
	}
	args = append(args, limit*candidateFactor)
	query += fmt.Sprintf(` ORDER BY created_at DESC, position ASC LIMIT $%d`, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Snippet
	for rows.Next() {
		var s Snippet
		if err := rows.Scan(&s.ID, &s.UploadID, &s.Source, &s.Position, &s.Text, &s.CreatedAt); err != nil {
			return nil, err
		}
		candidates = append(candidates, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Rank(candidates, terms, limit), nil
}

func (r *PGRepo) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, owner_id, file_name, mime_type, size_bytes, storage_key, extracted_text_key, created_at
		FROM evidence_uploads
		ORDER BY created_at DESC
		LIMIT $1`, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var (
			u         Upload
			extracted sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.OwnerID, &u.FileName, &u.MimeType, &u.SizeBytes, &u.StorageKey, &extracted, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.ExtractedTextKey = extracted.String
		out = append(out, u)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repo = (*PGRepo)(nil)
