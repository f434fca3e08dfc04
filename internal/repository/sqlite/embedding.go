package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/estate/pkg/models"
)

func (r *SQLiteRepo) UpsertEmbedding(ctx context.Context, e *models.PropertyEmbedding) error {
	if e == nil || len(e.Vector) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	_, err = r.conn.Exec(ctx, `INSERT INTO property_embeddings (property_id, model, dims, vector, updated) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(property_id) DO UPDATE SET model = excluded.model, dims = excluded.dims, vector = excluded.vector, updated = excluded.updated`,
		e.PropertyID, e.Model, len(e.Vector), string(vec), now())
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) ListEmbeddings(ctx context.Context, model string) ([]models.PropertyEmbedding, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT e.property_id, e.model, e.vector FROM property_embeddings e
		JOIN properties p ON p.id = e.property_id
		WHERE e.model = ? AND p.status = 'approved'`, model)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.PropertyEmbedding
	for rows.Next() {
		var (
			e   models.PropertyEmbedding
			vec string
		)
		if err := rows.Scan(&e.PropertyID, &e.Model, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
			r.logger.Warn("skipping undecodable embedding", "property_id", e.PropertyID, "err", err)
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
