// Package jobs runs persistent background work: a jobs table polled by a
// pool of workers, with exponential retry and a dead-letter table.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job states as stored in jobs.status.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// DefaultMaxAttempts applies when a job is enqueued without a limit.
const DefaultMaxAttempts = 5

// Job represents a background job
type Job struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

// NewJob marshals payload into a job ready to be enqueued now.
func NewJob(typ string, payload any, priority, maxAttempts int) (*Job, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Job{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}, nil
}

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *Job) error

// ErrMaxAttempts indicates the job reached max attempts
var ErrMaxAttempts = errors.New("max attempts reached")

// ErrNoHandler is recorded on jobs whose type has no registered handler.
var ErrNoHandler = errors.New("no handler")

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt >= 9 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
