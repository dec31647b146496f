package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vipul43/saas-bridge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCredentialNotFound = errors.New("credential not found")

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByProvider retrieves the credential stored for a provider
func (r *CredentialRepository) GetByProvider(ctx context.Context, provider string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	result := r.db.WithContext(ctx).First(&cred, "provider = ?", provider)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", result.Error)
	}
	return &cred, nil
}

// Upsert inserts the credential or overwrites the token fields of the
// existing row for the same provider. created_at and last_used_at are kept.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.OAuthCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token",
				"access_token_expires_at",
				"refresh_token",
				"token_type",
				"scope",
				"refresh_failed_at",
				"updated_at",
			}),
		}).
		Create(cred)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert credential: %w", result.Error)
	}
	return nil
}

// UpdateLastUsed stamps last_used_at without touching updated_at
func (r *CredentialRepository) UpdateLastUsed(ctx context.Context, provider string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.OAuthCredential{}).
		Where("provider = ?", provider).
		UpdateColumn("last_used_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update last used: %w", result.Error)
	}
	return nil
}

// UpdateRefreshFailed records (or clears, with nil) a rejected refresh
func (r *CredentialRepository) UpdateRefreshFailed(ctx context.Context, provider string, at *time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.OAuthCredential{}).
		Where("provider = ?", provider).
		UpdateColumn("refresh_failed_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update refresh failure: %w", result.Error)
	}
	return nil
}

// Delete removes the provider's credential. It reports whether a row existed.
func (r *CredentialRepository) Delete(ctx context.Context, provider string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Delete(&models.OAuthCredential{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete credential: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
