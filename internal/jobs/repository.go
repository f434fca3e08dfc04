package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/estate/internal/db"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

type Repository struct {
	db *db.DB
}

func NewRepository(d *db.DB) *Repository { return &Repository{db: d} }

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *Repository) Enqueue(ctx context.Context, j *Job) (int64, error) {
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = DefaultMaxAttempts
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now()
	}
	now := time.Now().UTC().Unix()
	q := `INSERT INTO jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := r.db.Exec(ctx, q, j.Type, string(j.Payload), StatusQueued, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().Unix(), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	j.ID = id
	j.Status = StatusQueued
	return id, nil
}

// Claim marks the next ready job as running and returns it, or nil when
// nothing is due. Lower priority values run first. Selection and update are a
// single statement so two workers never claim the same row.
func (r *Repository) Claim(ctx context.Context) (*Job, error) {
	now := time.Now().UTC().Unix()
	q := `UPDATE jobs SET status = 'running', updated = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status IN ('queued', 'retry')
			  AND (next_try_at IS NULL OR next_try_at <= ?)
			  AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC
			LIMIT 1
		)
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRow(ctx, q, now, now, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

// GetJob returns a job by id, or nil when it is not in the jobs table.
func (r *Repository) GetJob(ctx context.Context, id int64) (*Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.UTC().Unix()
	}
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	if _, err := r.db.Exec(ctx, q, j.Status, j.Attempts, nextTry, nullString(j.LastError), time.Now().UTC().Unix(), j.ID); err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	return nil
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *Repository) MoveToDeadLetter(ctx context.Context, j *Job) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().Unix()); err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
			return fmt.Errorf("delete job %d: %w", j.ID, err)
		}
		return nil
	})
}

// DeadLetter is a job that exhausted its attempts.
type DeadLetter struct {
	ID        int64           `json:"id"`
	JobID     int64           `json:"job_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	FailedAt  time.Time       `json:"failed_at"`
}

// ListDeadLetters returns the most recent dead-letter entries first.
func (r *Repository) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryRows(ctx, `SELECT id, job_id, type, payload, attempts, last_error, failed_at FROM dead_letter_jobs ORDER BY failed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var (
			d         DeadLetter
			payload   sql.NullString
			lastError sql.NullString
			failedAt  int64
		)
		if err := rows.Scan(&d.ID, &d.JobID, &d.Type, &payload, &d.Attempts, &lastError, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if payload.Valid {
			d.Payload = json.RawMessage(payload.String)
		}
		d.LastError = lastError.String
		d.FailedAt = time.Unix(failedAt, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// Counts returns the number of jobs per status.
func (r *Repository) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryRows(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// RequeueStale puts jobs left running since before cutoff back in the queue.
// A worker that died mid-job leaves its row in the running state.
func (r *Repository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(ctx, `UPDATE jobs SET status = 'retry', next_try_at = NULL, updated = ? WHERE status = 'running' AND updated < ?`,
		time.Now().UTC().Unix(), cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeDone deletes finished jobs last updated before cutoff. With dryRun it
// only counts them.
func (r *Repository) PurgeDone(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error) {
	if dryRun {
		var n int64
		if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'done' AND updated < ?`, cutoff.UTC().Unix()).Scan(&n); err != nil {
			return 0, fmt.Errorf("count done jobs: %w", err)
		}
		return n, nil
	}
	res, err := r.db.Exec(ctx, `DELETE FROM jobs WHERE status = 'done' AND updated < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge done jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		j           Job
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	j.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	j.Created = time.Unix(created, 0).UTC()
	j.Updated = time.Unix(updated, 0).UTC()
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.Unix(nextTry.Int64, 0).UTC()
		j.NextTryAt = &t
	}
	j.LastError = lastError.String
	return &j, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
