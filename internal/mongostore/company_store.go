package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CompanyStore is the MongoDB counterpart of repository.CompanyRepository.
type CompanyStore struct {
	coll *mongo.Collection
}

func NewCompanyStore(db *mongo.Database) *CompanyStore {
	return &CompanyStore{coll: db.Collection(CompaniesCollection)}
}

func (s *CompanyStore) GetByExternalID(ctx context.Context, externalID string) (*models.Company, error) {
	var company models.Company
	err := s.coll.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, company); err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// UpdateSynced sets only the synced fields, so notes and local_tags survive.
func (s *CompanyStore) UpdateSynced(ctx context.Context, company *models.Company) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range company.SyncedFields() {
		set[k] = v
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"external_id": company.ExternalID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrCompanyNotFound
	}
	return nil
}

func (s *CompanyStore) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"external_id": externalID})
	if err != nil {
		return false, fmt.Errorf("failed to delete company: %w", err)
	}
	return res.DeletedCount > 0, nil
}
