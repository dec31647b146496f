package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vipul43/saas-bridge/internal/models"
	"gorm.io/gorm"
)

var ErrCompanyNotFound = errors.New("company not found")

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// GetByExternalID retrieves a company by the provider's ID
func (r *CompanyRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Company, error) {
	var company models.Company
	result := r.db.WithContext(ctx).First(&company, "external_id = ?", externalID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", result.Error)
	}
	return &company, nil
}

// Create inserts a new company
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// UpdateSynced overwrites the synced fields of an existing company.
// Local-only columns (notes, local_tags) are not part of the update.
func (r *CompanyRepository) UpdateSynced(ctx context.Context, company *models.Company) error {
	updates := company.SyncedFields()
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("external_id = ?", company.ExternalID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update company: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

// DeleteByExternalID removes a company. It reports whether a row existed.
func (r *CompanyRepository) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Delete(&models.Company{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete company: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
