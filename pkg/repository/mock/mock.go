package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	Users      *UserRepo
	Embeddings *EmbeddingRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		Users:      &UserRepo{byID: map[string]*models.User{}},
		Embeddings: &EmbeddingRepo{byID: map[string]models.PropertyEmbedding{}},
	}
}

var _ repository.UserRepo = (*UserRepo)(nil)
var _ repository.EmbeddingRepo = (*EmbeddingRepo)(nil)

// UserRepo is an in-memory user store. Set CreateErr or GetErr to force failures.
type UserRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.User
	CreateErr error
	GetErr    error
}

func (m *UserRepo) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range m.byID {
		if existing.Email == u.Email || (u.Phone != "" && existing.Phone == u.Phone) {
			return repository.ErrDuplicate
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *UserRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *UserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// SetRole changes a stored user's role, simulating an out-of-band role change.
func (m *UserRepo) SetRole(id string, role models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.Role = role
	}
}

// Delete removes a stored user.
func (m *UserRepo) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// EmbeddingRepo keeps vectors in memory. Every stored listing counts as approved.
type EmbeddingRepo struct {
	mu      sync.Mutex
	byID    map[string]models.PropertyEmbedding
	ListErr error
}

func (m *EmbeddingRepo) UpsertEmbedding(ctx context.Context, e *models.PropertyEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[e.PropertyID] = *e
	return nil
}

func (m *EmbeddingRepo) ListEmbeddings(ctx context.Context, model string) ([]models.PropertyEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []models.PropertyEmbedding
	for _, e := range m.byID {
		if e.Model == model {
			out = append(out, e)
		}
	}
	return out, nil
}
