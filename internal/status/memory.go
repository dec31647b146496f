package status

import (
	"context"
	"sync"

	"github.com/vipul43/saas-bridge/internal/models"
)

// MemoryStore keeps the last sync result in a single mutex-guarded slot.
type MemoryStore struct {
	mu   sync.RWMutex
	last *models.SyncResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored result.
func (s *MemoryStore) Save(ctx context.Context, result models.SyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &result
	return nil
}

// Last returns a copy of the stored result, if any.
func (s *MemoryStore) Last(ctx context.Context) (models.SyncResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return models.SyncResult{}, false, nil
	}
	result := *s.last
	if result.CompletedAt != nil {
		completed := *result.CompletedAt
		result.CompletedAt = &completed
	}
	return result, true, nil
}
