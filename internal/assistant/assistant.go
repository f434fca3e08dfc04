// Package assistant puts a language model behind the marketplace: chat
// replies, admin insights and embedding-based listing search. The model is an
// external collaborator reached through the Generator and Embedder interfaces.
package assistant

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garnizeh/estate/internal/access"
	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/ollama"
	"github.com/garnizeh/estate/pkg/repository"
)

const maxMessageLen = 1000

var (
	//go:embed prompts/chat.tmpl
	chatPrompt string
	//go:embed prompts/insights.tmpl
	insightsPrompt string
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

type Config struct {
	ChatModel  string        `yaml:"chat_model"`
	EmbedModel string        `yaml:"embed_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{ChatModel: "llama3", EmbedModel: "nomic-embed-text", Timeout: 60 * time.Second}
}

// Engine wires the model collaborators to the listing store.
type Engine struct {
	gen     Generator
	emb     Embedder
	props   repository.PropertyRepo
	vectors repository.EmbeddingRepo
	loader  *Loader
	cfg     Config
	logger  *slog.Logger
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithLoader(l *Loader) Option { return func(e *Engine) { e.loader = l } }

// New builds an Engine. Zero config fields fall back to DefaultConfig.
func New(gen Generator, emb Embedder, props repository.PropertyRepo, vectors repository.EmbeddingRepo, cfg Config, opts ...Option) (*Engine, error) {
	d := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = d.ChatModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = d.EmbedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}

	e := &Engine{
		gen:     gen,
		emb:     emb,
		props:   props,
		vectors: vectors,
		cfg:     cfg,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(e)
	}
	if e.loader == nil {
		l, err := NewLoader(nil)
		if err != nil {
			return nil, err
		}
		e.loader = l
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ChatRequest is one user turn. PropertyID optionally grounds the reply in a listing.
type ChatRequest struct {
	Message    string `json:"message"`
	PropertyID string `json:"propertyId,omitempty"`
}

type ChatReply struct {
	Reply      string `json:"reply"`
	Model      string `json:"model"`
	PropertyID string `json:"propertyId,omitempty"`
}

type chatData struct {
	Role     models.Role
	Message  string
	Property *models.Property
}

// Reply answers a chat message for an authenticated caller. A referenced
// listing must be visible to the caller.
func (e *Engine) Reply(ctx context.Context, caller *access.Caller, req ChatRequest) (*ChatReply, error) {
	if err := access.Authenticated(caller); err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, apperr.Field("message", "is required")
	}
	if utf8.RuneCountInString(msg) > maxMessageLen {
		return nil, apperr.Field("message", "must be at most 1000 characters")
	}

	data := chatData{Role: caller.Role, Message: msg}
	if id := strings.TrimSpace(req.PropertyID); id != "" {
		p, err := e.props.GetProperty(ctx, id)
		if err != nil {
			return nil, apperr.Internal("load property", err)
		}
		if p == nil || (!p.Status.Public() && !caller.Owns(p.Owner) && !caller.IsAdmin()) {
			return nil, apperr.NotFound("property", id)
		}
		data.Property = p
	}

	prompt, err := ollama.RenderTemplate(chatPrompt, data)
	if err != nil {
		return nil, apperr.Internal("render chat prompt", err)
	}
	out, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	reply := &ChatReply{Reply: strings.TrimSpace(out), Model: e.cfg.ChatModel}
	if data.Property != nil {
		reply.PropertyID = data.Property.ID
	}
	e.logger.Info("assistant reply", "user", caller.ID, "property_id", reply.PropertyID, "chars", utf8.RuneCountInString(reply.Reply))
	return reply, nil
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	out, err := e.gen.Generate(ctx, e.cfg.ChatModel, prompt)
	if err != nil {
		return "", upstream(err)
	}
	return out, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	vec, err := e.emb.Embed(ctx, e.cfg.EmbedModel, text)
	if err != nil {
		return nil, upstream(err)
	}
	return vec, nil
}

// upstream classifies a collaborator failure.
func upstream(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.UpstreamTimeout("language model did not answer in time", err)
	}
	return apperr.UpstreamUnavailable("language model unavailable", err)
}
