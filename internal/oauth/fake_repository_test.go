package oauth

import (
	"context"
	"sync"
	"time"

	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/repository"
)

type memoryCredentialRepository struct {
	mu        sync.Mutex
	creds     map[string]models.OAuthCredential
	upsertErr error
}

func newMemoryCredentialRepository() *memoryCredentialRepository {
	return &memoryCredentialRepository{creds: map[string]models.OAuthCredential{}}
}

func (r *memoryCredentialRepository) put(cred models.OAuthCredential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[cred.Provider] = cred
}

func (r *memoryCredentialRepository) get(provider string) (models.OAuthCredential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[provider]
	return c, ok
}

func (r *memoryCredentialRepository) GetByProvider(ctx context.Context, provider string) (*models.OAuthCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[provider]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	return &c, nil
}

func (r *memoryCredentialRepository) Upsert(ctx context.Context, cred *models.OAuthCredential) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := *cred
	if existing, ok := r.creds[cred.Provider]; ok {
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		next.LastUsedAt = existing.LastUsedAt
	}
	r.creds[cred.Provider] = next
	return nil
}

func (r *memoryCredentialRepository) UpdateLastUsed(ctx context.Context, provider string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.creds[provider]; ok {
		c.LastUsedAt = &at
		r.creds[provider] = c
	}
	return nil
}

func (r *memoryCredentialRepository) UpdateRefreshFailed(ctx context.Context, provider string, at *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.creds[provider]; ok {
		c.RefreshFailedAt = at
		r.creds[provider] = c
	}
	return nil
}

func (r *memoryCredentialRepository) Delete(ctx context.Context, provider string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[provider]; !ok {
		return false, nil
	}
	delete(r.creds, provider)
	return true, nil
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
