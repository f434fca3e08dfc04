package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"
)

var (
	ErrCircuitOpen = errors.New("ollama circuit open")
	ErrEmptyOutput = errors.New("ollama returned no output")
)

// Client wraps the Ollama API client and adds retries, timeout, and circuit breaker.
type Client struct {
	api    *api.Client
	cfg    Config
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

// package-level logger for pkg/ollama; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/ollama. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// NewClient creates a new Ollama client wrapper.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		api:    api.NewClient(u, httpClient),
		cfg:    cfg,
		client: httpClient,
	}
	logger.Debug("ollama: client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

// NewDefaultClient builds a client with a pooled transport suited to a long
// running server.
func NewDefaultClient(cfg Config) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return NewClient(cfg, &http.Client{Transport: transport})
}

// Close releases idle connections on the underlying transport when supported.
// Close is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt32(&c.failures, 0)
}

// retryable reports whether a failed attempt is worth repeating. Client
// errors such as an unknown model are returned immediately.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se api.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// call runs fn with a per-attempt timeout, retrying with linear backoff.
// The parent context bounds the whole sequence.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		ctxReq, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		start := time.Now()
		err := fn(ctxReq)
		cancel()
		if err == nil {
			c.recordSuccess()
			logger.Debug("ollama: call ok", slog.String("op", op), slog.Int("attempt", attempt+1), slog.Duration("latency", time.Since(start)))
			return nil
		}

		lastErr = err
		c.recordFailure()
		logger.Warn("ollama: call failed", slog.String("op", op), slog.Int("attempt", attempt+1), slog.Any("error", err))

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if !retryable(err) || attempt == c.cfg.Retries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(c.cfg.Backoff * time.Duration(attempt+1)):
		}
		if c.isCircuitOpen() {
			return ErrCircuitOpen
		}
	}

	return fmt.Errorf("%s failed after %d attempt(s): %w", op, c.cfg.Retries+1, lastErr)
}

// Generate sends a prompt to the model and returns the full response text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	var out string
	err := c.call(ctx, "generate", func(ctx context.Context) error {
		stream := false
		req := &api.GenerateRequest{Model: model, Prompt: prompt, Stream: &stream}
		var sb strings.Builder
		if err := c.api.Generate(ctx, req, func(r api.GenerateResponse) error {
			sb.WriteString(r.Response)
			return nil
		}); err != nil {
			return err
		}
		out = sb.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyOutput
	}
	return out, nil
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	var vec []float32
	err := c.call(ctx, "embed", func(ctx context.Context) error {
		resp, err := c.api.Embed(ctx, &api.EmbedRequest{Model: model, Input: text})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
			return ErrEmptyOutput
		}
		vec = resp.Embeddings[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// ListModels returns the names of the models available on the instance.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	err := c.call(ctx, "list models", func(ctx context.Context) error {
		resp, err := c.api.List(ctx)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, m := range resp.Models {
			names = append(names, m.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Health checks the instance is reachable and serves every configured model.
func (c *Client) Health(ctx context.Context) error {
	names, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if len(names) == 0 {
		return errors.New("health check failed: no models available")
	}
	if missing := missingModels(c.cfg.Models, names); len(missing) > 0 {
		return fmt.Errorf("health check failed: models not pulled: %s", strings.Join(missing, ", "))
	}
	return nil
}

// missingModels returns the wanted names absent from have. A bare name
// matches its ":latest" tag.
func missingModels(want, have []string) []string {
	present := make(map[string]bool, len(have)*2)
	for _, h := range have {
		present[h] = true
		present[strings.TrimSuffix(h, ":latest")] = true
	}
	var missing []string
	for _, w := range want {
		if !present[w] {
			missing = append(missing, w)
		}
	}
	return missing
}
