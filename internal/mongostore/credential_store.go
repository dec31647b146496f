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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CredentialStore is the MongoDB counterpart of repository.CredentialRepository.
type CredentialStore struct {
	coll *mongo.Collection
}

func NewCredentialStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{coll: db.Collection(CredentialsCollection)}
}

func (s *CredentialStore) GetByProvider(ctx context.Context, provider string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	err := s.coll.FindOne(ctx, bson.M{"provider": provider}).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) Upsert(ctx context.Context, cred *models.OAuthCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	update := bson.M{
		"$set": bson.M{
			"access_token":            cred.AccessToken,
			"access_token_expires_at": cred.AccessTokenExpiresAt,
			"refresh_token":           cred.RefreshToken,
			"token_type":              cred.TokenType,
			"scope":                   cred.Scope,
			"refresh_failed_at":       cred.RefreshFailedAt,
			"updated_at":              cred.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        cred.ID,
			"created_at": createdAt,
		},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"provider": cred.Provider}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) UpdateLastUsed(ctx context.Context, provider string, at time.Time) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"provider": provider}, bson.M{"$set": bson.M{"last_used_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

func (s *CredentialStore) UpdateRefreshFailed(ctx context.Context, provider string, at *time.Time) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"provider": provider}, bson.M{"$set": bson.M{"refresh_failed_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update refresh failure: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, provider string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"provider": provider})
	if err != nil {
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}
	return res.DeletedCount > 0, nil
}
