package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const cloudCounterKey = "cloud"

// UsageRepo is a Postgres-backed cloud usage counter.
type UsageRepo struct {
	db  *DB
	key string
}

func NewUsageRepo(db *DB) *UsageRepo {
	return &UsageRepo{db: db, key: cloudCounterKey}
}

func (r *UsageRepo) Used(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT used FROM usage_counters WHERE counter_key=$1`, r.key).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return n, nil
}

func (r *UsageRepo) Increment(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO usage_counters (counter_key, used) VALUES ($1, 1)
ON CONFLICT (counter_key) DO UPDATE SET used = usage_counters.used + 1, updated_at = NOW()
RETURNING used`, r.key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}
