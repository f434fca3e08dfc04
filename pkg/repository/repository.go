package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/estate/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Getters return (nil, nil) when the row does not exist.

// ErrDuplicate is returned when a unique constraint (user email or phone) is violated.
var ErrDuplicate = errors.New("duplicate key")

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type PropertyRepo interface {
	CreateProperty(ctx context.Context, p *models.Property) error
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	ListProperties(ctx context.Context, f models.PropertyFilter) ([]models.Property, int, error)
	// UpdateProperty writes every mutable column of p when the stored version
	// equals expectedVersion, and bumps the version. It reports false when no
	// row matched.
	UpdateProperty(ctx context.Context, p *models.Property, expectedVersion int64) (bool, error)
	// IncrementViews bumps stats.views without touching the version.
	IncrementViews(ctx context.Context, id string) error
	// DeleteProperty removes the listing and its embedding. Inquiries are kept.
	DeleteProperty(ctx context.Context, id string) (bool, error)
}

type InquiryRepo interface {
	// CreateInquiry stores q and increments the listing's inquiry counter in
	// one transaction. It reports false, storing nothing, when the listing is
	// missing or not approved.
	CreateInquiry(ctx context.Context, q *models.Inquiry) (bool, error)
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	ListInquiriesByBuyer(ctx context.Context, buyerID string, f models.InquiryFilter) ([]models.Inquiry, int, error)
	ListInquiriesByOwner(ctx context.Context, ownerID string, f models.InquiryFilter) ([]models.Inquiry, int, error)
	UpdateInquiry(ctx context.Context, q *models.Inquiry, expectedVersion int64) (bool, error)
	DeleteInquiry(ctx context.Context, id string) (bool, error)
}

type EmbeddingRepo interface {
	UpsertEmbedding(ctx context.Context, e *models.PropertyEmbedding) error
	// ListEmbeddings returns vectors of approved listings built with model.
	ListEmbeddings(ctx context.Context, model string) ([]models.PropertyEmbedding, error)
}

type AnalyticsRepo interface {
	Analytics(ctx context.Context, topCities int) (*models.Analytics, error)
}
