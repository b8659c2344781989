package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postovik/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (id, kind, status, fire_at, interval_minutes, payload, last_error, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		job.ID,
		job.Kind,
		job.Status,
		job.FireAt,
		job.IntervalMinutes,
		job.Payload,
		job.LastError,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	job.CreatedAt = now

	return nil
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT id, kind, status, fire_at, interval_minutes, payload, last_error, created_at, last_run_at
              FROM jobs WHERE id = ?`

	var job models.Job
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Kind, &job.Status, &job.FireAt, &job.IntervalMinutes, &job.Payload, &job.LastError, &job.CreatedAt, &job.LastRunAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListActiveJobs returns pending and running jobs ordered by next fire time.
// Terminal jobs stay in the table as history but are not listed here.
func (db *DB) ListActiveJobs(ctx context.Context) ([]models.Job, error) {
	query := `SELECT id, kind, status, fire_at, interval_minutes, payload, last_error, created_at, last_run_at
              FROM jobs
              WHERE status IN ('pending', 'running')
              ORDER BY fire_at ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// DueJobs returns pending jobs whose fire time has elapsed, oldest first.
func (db *DB) DueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	query := `SELECT id, kind, status, fire_at, interval_minutes, payload, last_error, created_at, last_run_at
              FROM jobs
              WHERE status = 'pending' AND fire_at <= ?
              ORDER BY fire_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (db *DB) MarkJobRunning(ctx context.Context, id string, startedAt time.Time) error {
	query := `UPDATE jobs SET status = ?, last_run_at = ? WHERE id = ? AND status = 'pending'`
	result, err := db.ExecContext(ctx, query, models.StatusRunning, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// CompleteJob writes the outcome of one firing. A nil nextFireAt leaves the
// job in the given terminal status; a non-nil one re-enters the rotation
// (recurring jobs go back to pending with the advanced fire time). Only a
// running job is updated: a job cancelled mid-flight stays cancelled.
func (db *DB) CompleteJob(ctx context.Context, id, status string, errMsg *string, nextFireAt *time.Time) error {
	var query string
	var args []interface{}

	if nextFireAt != nil {
		query = `UPDATE jobs SET status = 'pending', last_error = ?, fire_at = ? WHERE id = ? AND status = 'running'`
		args = []interface{}{errMsg, nextFireAt, id}
	} else {
		query = `UPDATE jobs SET status = ?, last_error = ? WHERE id = ? AND status = 'running'`
		args = []interface{}{status, errMsg, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// CancelJob moves a pending or running job to cancelled. Returns
// ErrJobNotFound when no such active job exists; cancelling a running job
// does not interrupt the in-flight attempt.
func (db *DB) CancelJob(ctx context.Context, id string) error {
	query := `UPDATE jobs SET status = ? WHERE id = ? AND status IN ('pending', 'running')`
	result, err := db.ExecContext(ctx, query, models.StatusCancelled, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// UpdateJobPayload replaces payload and interval in place, used by the
// folder-watch reconfigure path. The fire time moves only when the interval
// shrinks below the currently planned one.
func (db *DB) UpdateJobPayload(ctx context.Context, id, payload string, intervalMinutes int, fireAt time.Time) error {
	query := `UPDATE jobs SET payload = ?, interval_minutes = ?, fire_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, payload, intervalMinutes, fireAt, id)
	if err != nil {
		return fmt.Errorf("failed to update job payload: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// ResetRunningJobs returns jobs stuck in running back to pending. Called
// once at startup: a job can only be left running by a crash mid-handler.
func (db *DB) ResetRunningJobs(ctx context.Context) (int64, error) {
	query := `UPDATE jobs SET status = 'pending' WHERE status = 'running'`
	result, err := db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	return result.RowsAffected()
}

// PruneTerminalJobs keeps only the most recent terminal jobs as history.
func (db *DB) PruneTerminalJobs(ctx context.Context, keep int) error {
	query := `DELETE FROM jobs
              WHERE status IN ('succeeded', 'failed', 'cancelled')
              AND id NOT IN (
                  SELECT id FROM jobs
                  WHERE status IN ('succeeded', 'failed', 'cancelled')
                  ORDER BY COALESCE(last_run_at, created_at) DESC
                  LIMIT ?
              )`
	if _, err := db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("failed to prune terminal jobs: %w", err)
	}
	return nil
}

func scanJobs(rows *sql.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		err := rows.Scan(
			&j.ID, &j.Kind, &j.Status, &j.FireAt, &j.IntervalMinutes, &j.Payload, &j.LastError, &j.CreatedAt, &j.LastRunAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
