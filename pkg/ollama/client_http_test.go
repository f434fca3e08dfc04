package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/estate/pkg/ollama"
)

// writeSequence writes each object as a JSON line and flushes, the way Ollama streams.
func writeSequence(w http.ResponseWriter, seq []map[string]any) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, obj := range seq {
		_ = enc.Encode(obj)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func newClient(t *testing.T, srv *httptest.Server, cfg ollama.Config) *ollama.Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	c, err := ollama.NewClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Generate_AccumulatesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "llama3" || req["prompt"] != "hello" {
			writeError(w, http.StatusBadRequest, "unexpected request")
			return
		}
		writeSequence(w, []map[string]any{
			{"response": "Two bedrooms, ", "done": false},
			{"response": "close to the metro.", "done": true},
		})
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{})
	out, err := c.Generate(context.Background(), "llama3", "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Two bedrooms, close to the metro." {
		t.Fatalf("unexpected text %q", out)
	}
}

func TestClient_Generate_RetriesServerErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			writeError(w, http.StatusInternalServerError, "temporary")
			return
		}
		writeSequence(w, []map[string]any{{"response": "ok", "done": true}})
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{Retries: 2, CircuitFailureThreshold: 10})
	out, err := c.Generate(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("Generate expected success after retry, got %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected text %q", out)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClient_Generate_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeError(w, http.StatusNotFound, "model 'm' not found")
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{Retries: 3, CircuitFailureThreshold: 10})
	if _, err := c.Generate(context.Background(), "m", "p"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestClient_Generate_EmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSequence(w, []map[string]any{{"response": "  ", "done": true}})
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{})
	if _, err := c.Generate(context.Background(), "m", "p"); !errors.Is(err, ollama.ErrEmptyOutput) {
		t.Fatalf("expected ErrEmptyOutput, got %v", err)
	}
}

func TestClient_Generate_MalformedJSON_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{ this is : not json \n"))
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{})
	if _, err := c.Generate(context.Background(), "m", "p"); err == nil {
		t.Fatal("expected Generate to fail on malformed JSON")
	}
}

func TestClient_Generate_DeadlineExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{Retries: 3, CircuitFailureThreshold: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, "m", "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_CircuitBreaker_Opens(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeError(w, http.StatusInternalServerError, "permanent")
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{Retries: 0, CircuitFailureThreshold: 2, CircuitReset: time.Minute})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.Generate(ctx, "m", "p")
		if err == nil || errors.Is(err, ollama.ErrCircuitOpen) {
			t.Fatalf("attempt %d: expected upstream error, got %v", i+1, err)
		}
	}

	if _, err := c.Generate(ctx, "m", "p"); !errors.Is(err, ollama.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("open circuit should not reach the server, got %d attempts", got)
	}
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req["input"] == "" {
			_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{})
	vec, err := c.Embed(context.Background(), "nomic-embed-text", "sea facing flat")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != float32(0.2) {
		t.Fatalf("unexpected vector %v", vec)
	}

	if _, err := c.Embed(context.Background(), "nomic-embed-text", ""); !errors.Is(err, ollama.ErrEmptyOutput) {
		t.Fatalf("expected ErrEmptyOutput, got %v", err)
	}
}

func TestClient_ListModelsAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest","model":"llama3:latest"}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{Models: []string{"llama3"}})
	names, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 1 || names[0] != "llama3:latest" {
		t.Fatalf("unexpected models %v", names)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}

	missing := newClient(t, srv, ollama.Config{Models: []string{"llama3", "nomic-embed-text"}})
	err = missing.Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "nomic-embed-text") {
		t.Fatalf("expected missing model error, got %v", err)
	}
}

func TestClient_Health_NoModels_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv, ollama.Config{})
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected Health to fail when no models are available")
	}
}
