package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/ollama"
)

var errNoJSON = errors.New("no JSON object found in response")

// Insights is the narrative the model writes over the admin analytics.
type Insights struct {
	Summary         string   `json:"summary"`
	Highlights      []string `json:"highlights"`
	Recommendations []string `json:"recommendations"`
	Model           string   `json:"model"`
}

// Insights asks the model to comment on an analytics snapshot. The answer must
// contain a JSON object matching the insights.v1 schema.
func (e *Engine) Insights(ctx context.Context, a *models.Analytics) (*Insights, error) {
	if a == nil {
		return nil, apperr.Internal("insights: no analytics snapshot", nil)
	}
	prompt, err := ollama.RenderTemplate(insightsPrompt, a)
	if err != nil {
		return nil, apperr.Internal("render insights prompt", err)
	}
	out, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	ins, err := e.parseInsights(ctx, out)
	if err != nil {
		e.logger.Warn("insights rejected", "error", err, "raw", out)
		return nil, apperr.UpstreamUnavailable("language model returned malformed insights", err)
	}
	ins.Model = e.cfg.ChatModel
	return ins, nil
}

func (e *Engine) parseInsights(ctx context.Context, out string) (*Insights, error) {
	j := extractJSON(out)
	if j == "" {
		return nil, errNoJSON
	}
	if err := e.loader.Validate(ctx, InsightsSchema, []byte(j)); err != nil {
		return nil, err
	}
	var ins Insights
	if err := json.Unmarshal([]byte(j), &ins); err != nil {
		return nil, err
	}
	if ins.Highlights == nil {
		ins.Highlights = []string{}
	}
	if ins.Recommendations == nil {
		ins.Recommendations = []string{}
	}
	return &ins, nil
}

// extractJSON returns the substring from the first '{' to the last '}' in the
// input. Models often wrap JSON in prose or markdown fences.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
