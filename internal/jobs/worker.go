package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type WorkerPool struct {
	repo         *Repository
	handlers     map[string]Handler
	logger       *slog.Logger
	workerCount  int
	pollInterval time.Duration
	backoff      func(attempt int) time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

type PoolOption func(*WorkerPool)

// WithPollInterval sets how long an idle worker waits before polling again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *WorkerPool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithBackoff replaces BackoffDuration as the retry delay.
func WithBackoff(fn func(attempt int) time.Duration) PoolOption {
	return func(p *WorkerPool) {
		if fn != nil {
			p.backoff = fn
		}
	}
}

func NewWorkerPool(repo *Repository, handlers map[string]Handler, logger *slog.Logger, workerCount int, opts ...PoolOption) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		workerCount:  workerCount,
		pollInterval: 500 * time.Millisecond,
		backoff:      BackoffDuration,
		stop:         make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them. A job in progress runs to
// completion first. Stop may be called more than once.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// wait blocks for d and reports false when the pool is stopping.
func (p *WorkerPool) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Debug("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Debug("context canceled, worker exiting", "id", id)
			return
		default:
		}

		job, err := p.repo.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("claim job", "err", err)
			}
			if !p.wait(ctx, time.Second) {
				return
			}
			continue
		}
		if job == nil {
			if !p.wait(ctx, p.pollInterval) {
				return
			}
			continue
		}
		p.process(ctx, job)
	}
}

// process runs one claimed job and records the outcome.
func (p *WorkerPool) process(ctx context.Context, job *Job) {
	log := p.logger.With("job_id", job.ID, "type", job.Type)

	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = StatusFailed
		job.LastError = ErrNoHandler.Error()
		if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
			log.Error("move to dead letter", "err", err)
		}
		log.Warn("job has no handler")
		return
	}

	start := time.Now()
	err := p.run(ctx, h, job)
	if err == nil {
		job.Status = StatusDone
		job.LastError = ""
		job.NextTryAt = nil
		if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
			log.Error("mark job done", "err", upErr)
		}
		log.Info("job done", "duration", time.Since(start))
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		if mvErr := p.repo.MoveToDeadLetter(ctx, job); mvErr != nil {
			log.Error("move to dead letter", "err", mvErr)
		}
		log.Error("job failed", "attempts", job.Attempts, "err", fmt.Errorf("%w: %w", ErrMaxAttempts, err))
		return
	}

	t := time.Now().Add(p.backoff(job.Attempts))
	job.NextTryAt = &t
	job.Status = StatusRetry
	if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
		log.Error("update job for retry", "err", upErr)
	}
	log.Warn("job will retry", "attempts", job.Attempts, "next_try_at", t, "err", err)
}

// run calls h and turns a panic into an error so one bad job cannot take a
// worker down.
func (p *WorkerPool) run(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	j, err := NewJob(typ, payload, priority, maxAttempts)
	if err != nil {
		return 0, err
	}
	return p.repo.Enqueue(ctx, j)
}
