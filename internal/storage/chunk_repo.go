package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"docqa/internal/models"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks swaps a document's chunk set in one transaction.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("clear chunks for %s: %w", documentID, err)
	}
	for _, c := range chunks {
		var rects []byte
		if len(c.Rects) > 0 {
			rects, _ = json.Marshal(c.Rects)
		}
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, document_name, chunk_index, page_number, text, rects)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
ON CONFLICT (chunk_id)
DO UPDATE SET
  text = EXCLUDED.text,
  page_number = EXCLUDED.page_number,
  rects = EXCLUDED.rects`,
			c.ChunkID, documentID, c.DocumentName, c.ChunkIndex, c.PageNumber, c.Text, rects,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, document_id, document_name, chunk_index, page_number, text, rects
FROM chunks
WHERE document_id=$1
ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var (
			c     models.Chunk
			rects []byte
		)
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.DocumentName, &c.ChunkIndex, &c.PageNumber, &c.Text, &rects); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(rects) > 0 {
			if err := json.Unmarshal(rects, &c.Rects); err != nil {
				return nil, fmt.Errorf("decode rects for %s: %w", c.ChunkID, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
