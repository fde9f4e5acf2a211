package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docqa/internal/models"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

const (
	StatusReady    = "ready"
	StatusNeedsOCR = "needs_ocr"
	StatusFailed   = "failed"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// UpsertDocument stores the document row. A nil File keeps the stored binary.
func (r *DocumentRepo) UpsertDocument(ctx context.Context, d models.ManagedDocument, status string) error {
	pages, err := json.Marshal(d.ExtractedPages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	if status == "" {
		status = StatusReady
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, name, file, extracted_pages, summary, current_page, status)
VALUES ($1, $2, $3, $4::jsonb, NULLIF($5,''), $6, $7)
ON CONFLICT (document_id)
DO UPDATE SET
  name = EXCLUDED.name,
  file = COALESCE(EXCLUDED.file, documents.file),
  extracted_pages = EXCLUDED.extracted_pages,
  summary = COALESCE(EXCLUDED.summary, documents.summary),
  current_page = EXCLUDED.current_page,
  status = EXCLUDED.status,
  updated_at = NOW()`,
		d.ID, d.Name, d.File, pages, d.Summary, max(d.CurrentPage, 1), status,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, id string, withFile bool) (models.ManagedDocument, string, error) {
	var (
		d      models.ManagedDocument
		pages  []byte
		status string
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT document_id, name, CASE WHEN $2 THEN file ELSE NULL END, extracted_pages, COALESCE(summary,''), current_page, status
FROM documents WHERE document_id=$1`, id, withFile).
		Scan(&d.ID, &d.Name, &d.File, &pages, &d.Summary, &d.CurrentPage, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ManagedDocument{}, "", fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return models.ManagedDocument{}, "", fmt.Errorf("get document: %w", err)
	}
	if err := json.Unmarshal(pages, &d.ExtractedPages); err != nil {
		return models.ManagedDocument{}, "", fmt.Errorf("decode pages: %w", err)
	}
	return d, status, nil
}

// ListDocuments returns every document without binaries, oldest first.
func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]models.ManagedDocument, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT document_id, name, extracted_pages, COALESCE(summary,''), current_page
FROM documents
WHERE status=$1
ORDER BY created_at ASC`, StatusReady)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.ManagedDocument, 0)
	for rows.Next() {
		var (
			d     models.ManagedDocument
			pages []byte
		)
		if err := rows.Scan(&d.ID, &d.Name, &pages, &d.Summary, &d.CurrentPage); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(pages, &d.ExtractedPages); err != nil {
			return nil, fmt.Errorf("decode pages for %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) UpdateSummary(ctx context.Context, id, summary string) error {
	return r.exec(ctx, "update summary", `UPDATE documents SET summary=NULLIF($2,''), updated_at=NOW() WHERE document_id=$1`, id, summary)
}

func (r *DocumentRepo) UpdateCurrentPage(ctx context.Context, id string, page int) error {
	return r.exec(ctx, "update current page", `UPDATE documents SET current_page=$2, updated_at=NOW() WHERE document_id=$1`, id, page)
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return r.exec(ctx, "update status", `UPDATE documents SET status=$2, updated_at=NOW() WHERE document_id=$1`, id, status)
}

func (r *DocumentRepo) DeleteDocument(ctx context.Context, id string) error {
	return r.exec(ctx, "delete document", `DELETE FROM documents WHERE document_id=$1`, id)
}

func (r *DocumentRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
