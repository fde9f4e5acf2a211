package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docqa/internal/models"

	"github.com/jackc/pgx/v5"
)

const defaultSessionKey = "default"

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) SaveSession(ctx context.Context, st models.SessionState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO session_state (session_key, state) VALUES ($1, $2::jsonb)
ON CONFLICT (session_key) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`, defaultSessionKey, b)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession reports ok=false when nothing was saved yet.
func (r *SessionRepo) LoadSession(ctx context.Context) (models.SessionState, bool, error) {
	var b []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT state FROM session_state WHERE session_key=$1`, defaultSessionKey).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SessionState{}, false, nil
		}
		return models.SessionState{}, false, fmt.Errorf("load session: %w", err)
	}
	var st models.SessionState
	if err := json.Unmarshal(b, &st); err != nil {
		return models.SessionState{}, false, fmt.Errorf("decode session: %w", err)
	}
	return st, true, nil
}
