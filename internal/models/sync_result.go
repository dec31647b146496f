package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Resource names a sync target.
const (
	ResourceCompanies = "companies"
)

// SyncResult summarizes one sync run. It is kept in memory (or cache) only;
// the next run replaces it.
type SyncResult struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	Resource    string     `json:"resource"`
	Total       int        `json:"total"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	Errors      int        `json:"errors"`
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewSyncResult starts a fresh result for a run.
func NewSyncResult(provider, resource string, startedAt time.Time) SyncResult {
	return SyncResult{
		ID:        uuid.New().String(),
		Provider:  provider,
		Resource:  resource,
		StartedAt: startedAt,
	}
}

// Complete stamps the completion time and derives success and message.
// problems are appended to the message in order.
func (r *SyncResult) Complete(at time.Time, problems []string) {
	r.CompletedAt = &at
	r.Success = r.Errors == 0
	if r.Success {
		r.Message = fmt.Sprintf("synced %d %s (%d created, %d updated)", r.Total, r.Resource, r.Created, r.Updated)
		return
	}
	r.Message = fmt.Sprintf("sync finished with %d error(s) after %d %s (%d created, %d updated)",
		r.Errors, r.Total, r.Resource, r.Created, r.Updated)
	for _, p := range problems {
		r.Message += "; " + p
	}
}

// Abort marks a run that never started fetching, e.g. missing authorization.
func (r *SyncResult) Abort(at time.Time, message string) {
	r.CompletedAt = &at
	r.Success = false
	r.Message = message
}
