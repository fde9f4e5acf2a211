package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"docqa/internal/models"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) SaveMessage(ctx context.Context, m models.Message) error {
	var sources, stats []byte
	if len(m.SourceChunks) > 0 {
		sources, _ = json.Marshal(m.SourceChunks)
	}
	if m.Stats != nil {
		stats, _ = json.Marshal(m.Stats)
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO messages (message_id, role, kind, content, page_number, source_chunks, stats, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6::jsonb, $7::jsonb, $8)
ON CONFLICT (message_id) DO NOTHING`,
		m.ID, string(m.Role), string(m.Kind), m.Content, m.PageNumber, sources, stats, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the transcript in creation order.
func (r *MessageRepo) ListMessages(ctx context.Context) ([]models.Message, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT message_id, role, kind, content, COALESCE(page_number, 0), source_chunks, stats, created_at
FROM messages
ORDER BY created_at ASC, message_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	out := make([]models.Message, 0, 32)
	for rows.Next() {
		var (
			m              models.Message
			role, kind     string
			sources, stats []byte
		)
		if err := rows.Scan(&m.ID, &role, &kind, &m.Content, &m.PageNumber, &sources, &stats, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.Kind = models.MessageKind(kind)
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.SourceChunks); err != nil {
				return nil, fmt.Errorf("decode sources for %s: %w", m.ID, err)
			}
		}
		if len(stats) > 0 {
			m.Stats = &models.GenerationStats{}
			if err := json.Unmarshal(stats, m.Stats); err != nil {
				return nil, fmt.Errorf("decode stats for %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
