package oauth

import (
	"context"
	"time"

	"github.com/vipul43/saas-bridge/internal/models"
)

// ExpirySafetyMargin is subtracted from the reported expiry so a token is
// never handed out moments before it lapses. Must stay non-zero.
const ExpirySafetyMargin = 5 * time.Minute

// CredentialRepository is the persistence the TokenStore needs. Both the
// postgres repository and the mongo store satisfy it.
type CredentialRepository interface {
	GetByProvider(ctx context.Context, provider string) (*models.OAuthCredential, error)
	Upsert(ctx context.Context, cred *models.OAuthCredential) error
	UpdateLastUsed(ctx context.Context, provider string, at time.Time) error
	UpdateRefreshFailed(ctx context.Context, provider string, at *time.Time) error
	Delete(ctx context.Context, provider string) (bool, error)
}

// TokenStore owns the one-credential-per-provider records.
type TokenStore struct {
	repo CredentialRepository
	now  func() time.Time
}

func NewTokenStore(repo CredentialRepository) *TokenStore {
	return &TokenStore{repo: repo, now: time.Now}
}

// Get looks up the provider's credential. Absence is reported as
// repository.ErrCredentialNotFound.
func (s *TokenStore) Get(ctx context.Context, provider string) (*models.OAuthCredential, error) {
	return s.repo.GetByProvider(ctx, provider)
}

// IsExpired checks if access token is expired or will expire within the safety margin
func (s *TokenStore) IsExpired(cred *models.OAuthCredential) bool {
	if cred == nil || cred.AccessTokenExpiresAt == nil {
		return true // Assume expired if no expiry time
	}
	return !cred.AccessTokenExpiresAt.After(s.now().Add(ExpirySafetyMargin))
}

// Save upserts by provider and stamps updated_at.
func (s *TokenStore) Save(ctx context.Context, cred *models.OAuthCredential) error {
	cred.UpdatedAt = s.now()
	return s.repo.Upsert(ctx, cred)
}

// MarkUsed stamps last_used_at only.
func (s *TokenStore) MarkUsed(ctx context.Context, provider string) error {
	return s.repo.UpdateLastUsed(ctx, provider, s.now())
}

// MarkRefreshFailed records that the provider rejected the refresh token.
// The stored tokens are left as they are.
func (s *TokenStore) MarkRefreshFailed(ctx context.Context, provider string) error {
	now := s.now()
	return s.repo.UpdateRefreshFailed(ctx, provider, &now)
}

// Delete removes the credential. Returns false when nothing was stored.
func (s *TokenStore) Delete(ctx context.Context, provider string) (bool, error) {
	return s.repo.Delete(ctx, provider)
}
