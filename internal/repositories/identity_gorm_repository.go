package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"c2cmarket/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMIdentityRepository is a GORM implementation of IdentityRepository.
type GORMIdentityRepository struct {
	db *gorm.DB
}

// NewGORMIdentityRepository creates a new instance of GORMIdentityRepository.
func NewGORMIdentityRepository(db *gorm.DB) *GORMIdentityRepository {
	return &GORMIdentityRepository{
		db: db,
	}
}

// Create creates a new identity in the database. The email must be unused.
func (r *GORMIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if identity.UID == "" {
		identity.UID = uuid.New().String()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Identity{}).Where("email = ?", identity.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("identity with email %s: %w", identity.Email, ErrDuplicate)
		}
		return tx.Create(identity).Error
	})
	if errors.Is(err, ErrDuplicate) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// GetByEmail retrieves an identity by its email from the database.
func (r *GORMIdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var identity models.Identity
	if err := r.db.WithContext(ctx).First(&identity, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("identity with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity by email %s: %w", email, err)
	}
	return &identity, nil
}

// GetByUID retrieves an identity by its UID from the database.
func (r *GORMIdentityRepository) GetByUID(ctx context.Context, uid string) (*models.Identity, error) {
	var identity models.Identity
	if err := r.db.WithContext(ctx).First(&identity, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("identity with UID %s: %w", uid, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity by UID %s: %w", uid, err)
	}
	return &identity, nil
}

// Update updates an existing identity in the database.
func (r *GORMIdentityRepository) Update(ctx context.Context, identity *models.Identity) error {
	res := r.db.WithContext(ctx).Model(&models.Identity{}).Where("uid = ?", identity.UID).Updates(map[string]any{
		"display_name":  identity.DisplayName,
		"password_hash": identity.PasswordHash,
		"provider":      identity.Provider,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update identity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("identity with UID %s: %w", identity.UID, ErrNotFound)
	}
	return nil
}

// Delete deletes an identity by its UID from the database.
func (r *GORMIdentityRepository) Delete(ctx context.Context, uid string) error {
	res := r.db.WithContext(ctx).Delete(&models.Identity{}, "uid = ?", uid)
	if res.Error != nil {
		return fmt.Errorf("failed to delete identity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("identity with UID %s: %w", uid, ErrNotFound)
	}
	return nil
}

// SpendCode records a one-time code as used. The insert ignores an existing
// row, so of two concurrent spends only one affects a row.
func (r *GORMIdentityRepository) SpendCode(ctx context.Context, id string, expiresAt time.Time) error {
	var spent bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at < ?", time.Now().UTC()).Delete(&models.SpentCode{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.SpentCode{ID: id, ExpiresAt: expiresAt.UTC()})
		if res.Error != nil {
			return res.Error
		}
		spent = res.RowsAffected == 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record spent code: %w", err)
	}
	if spent {
		return fmt.Errorf("code %s: %w", id, ErrDuplicate)
	}
	return nil
}
