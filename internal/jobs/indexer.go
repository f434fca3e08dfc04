package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TypePropertyIndex embeds an approved listing for semantic search.
const TypePropertyIndex = "property.index"

// IndexPayload is the payload of a property.index job.
type IndexPayload struct {
	PropertyID string `json:"propertyId"`
}

// PropertyIndexer queues property.index jobs. It satisfies listing.Indexer.
type PropertyIndexer struct {
	repo        *Repository
	priority    int
	maxAttempts int
}

func NewPropertyIndexer(repo *Repository, maxAttempts int) *PropertyIndexer {
	return &PropertyIndexer{repo: repo, priority: 10, maxAttempts: maxAttempts}
}

// EnqueueIndex records a job to (re)embed the listing.
func (i *PropertyIndexer) EnqueueIndex(ctx context.Context, propertyID string) error {
	j, err := NewJob(TypePropertyIndex, IndexPayload{PropertyID: propertyID}, i.priority, i.maxAttempts)
	if err != nil {
		return err
	}
	if _, err := i.repo.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("enqueue index of %s: %w", propertyID, err)
	}
	return nil
}

// Indexer embeds and stores one listing.
type Indexer interface {
	Index(ctx context.Context, propertyID string) error
}

// IndexHandler runs property.index jobs against idx.
func IndexHandler(idx Indexer) Handler {
	return func(ctx context.Context, j *Job) error {
		var p IndexPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", TypePropertyIndex, err)
		}
		if strings.TrimSpace(p.PropertyID) == "" {
			return fmt.Errorf("%s payload without propertyId", TypePropertyIndex)
		}
		return idx.Index(ctx, p.PropertyID)
	}
}
