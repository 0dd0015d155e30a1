package repositories

import (
	"context"
	"time"

	"c2cmarket/internal/models"
)

// IdentityRepository defines the interface for identity account access.
// Emails are compared exactly; callers normalize them first.
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByUID(ctx context.Context, uid string) (*models.Identity, error)
	Update(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, uid string) error
	// SpendCode marks the one-time code id as used until expiresAt. It
	// returns ErrDuplicate when the code was already spent.
	SpendCode(ctx context.Context, id string, expiresAt time.Time) error
}
