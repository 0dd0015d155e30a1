package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"c2cmarket/internal/models"

	"github.com/google/uuid"
)

// MockIdentityRepository is an in-memory implementation of IdentityRepository.
type MockIdentityRepository struct {
	identities map[string]models.Identity
	spent      map[string]time.Time
	mu         sync.RWMutex
}

// NewMockIdentityRepository creates a new instance of MockIdentityRepository.
func NewMockIdentityRepository() *MockIdentityRepository {
	return &MockIdentityRepository{
		identities: make(map[string]models.Identity),
		spent:      make(map[string]time.Time),
	}
}

// Create adds a new identity. The email must be unused.
func (r *MockIdentityRepository) Create(_ context.Context, identity *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.identities {
		if existing.Email == identity.Email {
			return fmt.Errorf("identity with email %s: %w", identity.Email, ErrDuplicate)
		}
	}
	if identity.UID == "" {
		identity.UID = uuid.New().String()
	}
	now := time.Now()
	identity.CreatedAt, identity.UpdatedAt = now, now
	r.identities[identity.UID] = *identity
	return nil
}

// GetByEmail returns an identity by its email.
func (r *MockIdentityRepository) GetByEmail(_ context.Context, email string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, identity := range r.identities {
		if identity.Email == email {
			return &identity, nil
		}
	}
	return nil, fmt.Errorf("identity with email %s: %w", email, ErrNotFound)
}

// GetByUID returns an identity by its UID.
func (r *MockIdentityRepository) GetByUID(_ context.Context, uid string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[uid]
	if !ok {
		return nil, fmt.Errorf("identity with UID %s: %w", uid, ErrNotFound)
	}
	return &identity, nil
}

// Update modifies an existing identity.
func (r *MockIdentityRepository) Update(_ context.Context, identity *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[identity.UID]; !ok {
		return fmt.Errorf("identity with UID %s: %w", identity.UID, ErrNotFound)
	}
	identity.UpdatedAt = time.Now()
	r.identities[identity.UID] = *identity
	return nil
}

// Delete removes an identity by its UID.
func (r *MockIdentityRepository) Delete(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[uid]; !ok {
		return fmt.Errorf("identity with UID %s: %w", uid, ErrNotFound)
	}
	delete(r.identities, uid)
	return nil
}

// SpendCode marks a one-time code as used. Expired entries are dropped.
func (r *MockIdentityRepository) SpendCode(_ context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for code, exp := range r.spent {
		if exp.Before(now) {
			delete(r.spent, code)
		}
	}
	if _, ok := r.spent[id]; ok {
		return fmt.Errorf("code %s: %w", id, ErrDuplicate)
	}
	r.spent[id] = expiresAt
	return nil
}
