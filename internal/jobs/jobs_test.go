package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/estate/internal/db"
	"github.com/garnizeh/estate/internal/jobs"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func noBackoff(int) time.Duration { return 0 }

func TestBackoffDuration(t *testing.T) {
	cases := map[int]time.Duration{
		-1: time.Second,
		0:  time.Second,
		1:  2 * time.Second,
		2:  4 * time.Second,
		5:  32 * time.Second,
		8:  256 * time.Second,
		9:  5 * time.Minute,
		64: 5 * time.Minute,
	}
	for attempt, want := range cases {
		if got := jobs.BackoffDuration(attempt); got != want {
			t.Errorf("BackoffDuration(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestRepository_ClaimOrder(t *testing.T) {
	ctx := context.Background()
	repo := jobs.NewRepository(db.NewTestDB(t))

	enqueue := func(typ string, priority int, at time.Time) int64 {
		t.Helper()
		j, err := jobs.NewJob(typ, map[string]string{"k": typ}, priority, 3)
		if err != nil {
			t.Fatalf("NewJob: %v", err)
		}
		j.ScheduledAt = at
		id, err := repo.Enqueue(ctx, j)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		return id
	}
	now := time.Now()
	low := enqueue("low", 50, now.Add(-time.Minute))
	high := enqueue("high", 1, now.Add(-time.Second))
	enqueue("future", 0, now.Add(time.Hour))

	first, err := repo.Claim(ctx)
	if err != nil || first == nil {
		t.Fatalf("Claim: %v %v", first, err)
	}
	if first.ID != high || first.Status != jobs.StatusRunning {
		t.Fatalf("expected high priority job running first, got %+v", first)
	}
	var payload map[string]string
	if err := json.Unmarshal(first.Payload, &payload); err != nil || payload["k"] != "high" {
		t.Fatalf("payload round trip: %s %v", first.Payload, err)
	}

	second, _ := repo.Claim(ctx)
	if second == nil || second.ID != low {
		t.Fatalf("expected low priority job second, got %+v", second)
	}
	third, err := repo.Claim(ctx)
	if err != nil || third != nil {
		t.Fatalf("future job must not be claimed: %+v %v", third, err)
	}

	counts, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[jobs.StatusRunning] != 2 || counts[jobs.StatusQueued] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestRepository_RequeueStaleAndPurge(t *testing.T) {
	ctx := context.Background()
	repo := jobs.NewRepository(db.NewTestDB(t))

	j, _ := jobs.NewJob("x", nil, 0, 3)
	id, err := repo.Enqueue(ctx, j)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := repo.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	n, err := repo.RequeueStale(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("RequeueStale = %d, %v", n, err)
	}
	got, _ := repo.GetJob(ctx, id)
	if got == nil || got.Status != jobs.StatusRetry {
		t.Fatalf("expected job back in retry, got %+v", got)
	}

	got.Status = jobs.StatusDone
	if err := repo.UpdateJob(ctx, got); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	cutoff := time.Now().Add(time.Minute)
	if n, err := repo.PurgeDone(ctx, cutoff, true); err != nil || n != 1 {
		t.Fatalf("dry-run PurgeDone = %d, %v", n, err)
	}
	if got, _ := repo.GetJob(ctx, id); got == nil {
		t.Fatal("dry run must not delete")
	}
	if n, err := repo.PurgeDone(ctx, cutoff, false); err != nil || n != 1 {
		t.Fatalf("PurgeDone = %d, %v", n, err)
	}
	if got, _ := repo.GetJob(ctx, id); got != nil {
		t.Fatalf("job should be purged, got %+v", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkerPool_ProcessesJob(t *testing.T) {
	ctx := context.Background()
	repo := jobs.NewRepository(db.NewTestDB(t))

	handled := make(chan string, 1)
	handlers := map[string]jobs.Handler{
		"greet": func(ctx context.Context, j *jobs.Job) error {
			var p map[string]string
			if err := json.Unmarshal(j.Payload, &p); err != nil {
				return err
			}
			handled <- p["name"]
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, quietLogger(), 2, jobs.WithPollInterval(10*time.Millisecond))
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "greet", map[string]string{"name": "asha"}, 0, 3)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case name := <-handled:
		if name != "asha" {
			t.Fatalf("unexpected payload %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
	waitFor(t, "job done", func() bool {
		j, _ := repo.GetJob(ctx, id)
		return j != nil && j.Status == jobs.StatusDone
	})
}

func TestWorkerPool_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	repo := jobs.NewRepository(db.NewTestDB(t))

	var calls int32
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("not yet")
			}
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, quietLogger(), 1, jobs.WithPollInterval(10*time.Millisecond), jobs.WithBackoff(noBackoff))
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "flaky", nil, 0, 5)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "flaky job done", func() bool {
		j, _ := repo.GetJob(ctx, id)
		return j != nil && j.Status == jobs.StatusDone
	})
	j, _ := repo.GetJob(ctx, id)
	if j.Attempts != 2 || j.LastError != "" {
		t.Fatalf("expected 2 failed attempts recorded and error cleared, got %+v", j)
	}
}

func TestWorkerPool_DeadLetters(t *testing.T) {
	ctx := context.Background()
	repo := jobs.NewRepository(db.NewTestDB(t))

	handlers := map[string]jobs.Handler{
		"broken": func(ctx context.Context, j *jobs.Job) error { return errors.New("always fails") },
		"panics": func(ctx context.Context, j *jobs.Job) error { panic("boom") },
	}
	pool := jobs.NewWorkerPool(repo, handlers, quietLogger(), 2, jobs.WithPollInterval(10*time.Millisecond), jobs.WithBackoff(noBackoff))
	pool.Start(ctx)
	defer pool.Stop()

	broken, _ := pool.Enqueue(ctx, "broken", nil, 0, 2)
	panics, _ := pool.Enqueue(ctx, "panics", nil, 0, 1)
	orphan, _ := pool.Enqueue(ctx, "unknown", nil, 0, 5)

	waitFor(t, "three dead letters", func() bool {
		dl, _ := repo.ListDeadLetters(ctx, 10)
		return len(dl) == 3
	})
	dl, err := repo.ListDeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("ListDeadLetters: %v", err)
	}
	byJob := map[int64]jobs.DeadLetter{}
	for _, d := range dl {
		byJob[d.JobID] = d
	}
	if d := byJob[broken]; d.Attempts != 2 || d.LastError != "always fails" {
		t.Fatalf("unexpected dead letter for broken job: %+v", d)
	}
	if d := byJob[panics]; d.Attempts != 1 || d.LastError != "handler panic: boom" {
		t.Fatalf("unexpected dead letter for panicking job: %+v", d)
	}
	if d := byJob[orphan]; d.Type != "unknown" || d.LastError != jobs.ErrNoHandler.Error() {
		t.Fatalf("unexpected dead letter for unknown job: %+v", d)
	}
	for _, id := range []int64{broken, panics, orphan} {
		if j, _ := repo.GetJob(ctx, id); j != nil {
			t.Fatalf("job %d should have left the jobs table", id)
		}
	}
}

func TestWorkerPool_StopIsIdempotent(t *testing.T) {
	repo := jobs.NewRepository(db.NewTestDB(t))
	pool := jobs.NewWorkerPool(repo, nil, quietLogger(), 3, jobs.WithPollInterval(time.Hour))
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
}

type recordingIndexer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingIndexer) Index(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.err
}

func TestPropertyIndexer(t *testing.T) {
	ctx := context.Background()
	repo := jobs.NewRepository(db.NewTestDB(t))

	if err := jobs.NewPropertyIndexer(repo, 4).EnqueueIndex(ctx, "prop-1"); err != nil {
		t.Fatalf("EnqueueIndex: %v", err)
	}
	j, err := repo.Claim(ctx)
	if err != nil || j == nil {
		t.Fatalf("Claim: %v %v", j, err)
	}
	if j.Type != jobs.TypePropertyIndex || j.MaxAttempts != 4 || string(j.Payload) != `{"propertyId":"prop-1"}` {
		t.Fatalf("unexpected job %+v payload=%s", j, j.Payload)
	}

	idx := &recordingIndexer{}
	h := jobs.IndexHandler(idx)
	if err := h(ctx, j); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(idx.ids) != 1 || idx.ids[0] != "prop-1" {
		t.Fatalf("indexer not called with the property id: %v", idx.ids)
	}

	if err := h(ctx, &jobs.Job{Payload: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("expected error for payload without property id")
	}
	if err := h(ctx, &jobs.Job{Payload: json.RawMessage(`not json`)}); err == nil {
		t.Fatal("expected decode error")
	}
	idx.err = errors.New("model down")
	if err := h(ctx, j); !errors.Is(err, idx.err) {
		t.Fatalf("indexer error should surface for retry, got %v", err)
	}
}
