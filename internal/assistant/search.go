package assistant

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/models"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50

	maxQueryLen = 200
)

// Match is a listing ranked by semantic similarity to a query.
type Match struct {
	Property models.Property `json:"property"`
	Score    float64         `json:"score"`
}

// Search embeds query and ranks approved listings by cosine similarity.
// Vectors whose dimension differs from the query's are ignored.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Field("q", "is required")
	}
	if utf8.RuneCountInString(query) > maxQueryLen {
		return nil, apperr.Field("q", "must be at most 200 characters")
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	qv, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	stored, err := e.vectors.ListEmbeddings(ctx, e.cfg.EmbedModel)
	if err != nil {
		return nil, apperr.Internal("load embeddings", err)
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(stored))
	for _, s := range stored {
		if len(s.Vector) != len(qv) {
			continue
		}
		ranked = append(ranked, scored{id: s.PropertyID, score: Cosine(qv, s.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].id < ranked[j].id
		}
		return ranked[i].score > ranked[j].score
	})

	out := make([]Match, 0, limit)
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		p, err := e.props.GetProperty(ctx, r.id)
		if err != nil {
			return nil, apperr.Internal("load property", err)
		}
		// the listing may have been sold or removed since it was indexed
		if p == nil || p.Status != models.StatusApproved {
			continue
		}
		out = append(out, Match{Property: *p, Score: r.score})
	}
	return out, nil
}

// Index embeds an approved listing and stores its vector. Listings that are
// missing or not approved are skipped without error.
func (e *Engine) Index(ctx context.Context, propertyID string) error {
	p, err := e.props.GetProperty(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("load property %s: %w", propertyID, err)
	}
	if p == nil || p.Status != models.StatusApproved {
		e.logger.Debug("index skipped", "property_id", propertyID)
		return nil
	}
	vec, err := e.embed(ctx, IndexText(p))
	if err != nil {
		return err
	}
	if err := e.vectors.UpsertEmbedding(ctx, &models.PropertyEmbedding{PropertyID: p.ID, Model: e.cfg.EmbedModel, Vector: vec}); err != nil {
		return fmt.Errorf("store embedding %s: %w", propertyID, err)
	}
	e.logger.Info("property indexed", "property_id", p.ID, "model", e.cfg.EmbedModel, "dims", len(vec))
	return nil
}

// IndexText is the text a listing is embedded from.
func IndexText(p *models.Property) string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString(". ")
	b.WriteString(string(p.PropertyType))
	b.WriteString(" for ")
	b.WriteString(string(p.ListingType))
	b.WriteString(" in ")
	b.WriteString(p.Address.City)
	b.WriteString(", ")
	b.WriteString(p.Address.State)
	b.WriteString(". ")
	if p.Specs.Bedrooms > 0 {
		b.WriteString(strconv.Itoa(p.Specs.Bedrooms))
		b.WriteString(" bedrooms. ")
	}
	b.WriteString(p.Specs.Furnishing)
	b.WriteString(". ")
	if len(p.Amenities) > 0 {
		b.WriteString("Amenities: ")
		b.WriteString(strings.Join(p.Amenities, ", "))
		b.WriteString(". ")
	}
	b.WriteString(p.Description)
	return b.String()
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
