package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postovik/internal/models"
)

// SaveWatchConfig stores the single folder-watch configuration slot.
// The system supports exactly one concurrent watch, so this is an upsert
// into a one-row table rather than a collection.
func (db *DB) SaveWatchConfig(ctx context.Context, payload, jobID string) error {
	query := `INSERT INTO watch_config (slot, payload, job_id, updated_at)
              VALUES (1, ?, ?, ?)
              ON CONFLICT(slot) DO UPDATE SET
                  payload = excluded.payload,
                  job_id = excluded.job_id,
                  updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, payload, jobID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save watch config: %w", err)
	}
	return nil
}

func (db *DB) LoadWatchConfig(ctx context.Context) (payload, jobID string, err error) {
	query := `SELECT payload, job_id FROM watch_config WHERE slot = 1`
	err = db.QueryRowContext(ctx, query).Scan(&payload, &jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", models.ErrWatchNotConfigured
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load watch config: %w", err)
	}
	return payload, jobID, nil
}
