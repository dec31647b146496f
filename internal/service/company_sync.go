package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/vipul43/saas-bridge/internal/metrics"
	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/repository"
	"github.com/vipul43/saas-bridge/internal/teamleader"
)

const DefaultPageSize = 20

// maxReportedProblems bounds how many per-record problems end up in the result message.
const maxReportedProblems = 5

var (
	ErrAuthorizationRequired = errors.New("authorization required")
	errMissingExternalID     = errors.New("record has no id")
)

// CompanyRepository is implemented by repository.CompanyRepository and mongostore.CompanyStore.
type CompanyRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Company, error)
	Create(ctx context.Context, company *models.Company) error
	UpdateSynced(ctx context.Context, company *models.Company) error
	DeleteByExternalID(ctx context.Context, externalID string) (bool, error)
}

// TokenProvider hands out access tokens, refreshing them when needed.
type TokenProvider interface {
	HasValidToken(ctx context.Context) bool
	AccessToken(ctx context.Context) (string, error)
}

// CompanyFetcher reads companies from the CRM.
type CompanyFetcher interface {
	ListCompanies(ctx context.Context, accessToken string, pageSize, pageNumber int) (*teamleader.CompanyPage, error)
	GetCompany(ctx context.Context, accessToken, id string) (*teamleader.Company, error)
}

// ResultStore holds the most recent sync result.
type ResultStore interface {
	Save(ctx context.Context, result models.SyncResult) error
	Last(ctx context.Context) (models.SyncResult, bool, error)
}

type CompanySyncService struct {
	provider  string
	tokens    TokenProvider
	fetcher   CompanyFetcher
	companies CompanyRepository
	results   ResultStore
	pageSize  int
	now       func() time.Time

	group    singleflight.Group
	running  atomic.Bool
	inflight sync.WaitGroup
}

func NewCompanySyncService(tokens TokenProvider, fetcher CompanyFetcher, companies CompanyRepository, results ResultStore, pageSize int) *CompanySyncService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CompanySyncService{
		provider:  models.ProviderTeamleader,
		tokens:    tokens,
		fetcher:   fetcher,
		companies: companies,
		results:   results,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

// SyncAll runs a full company sync and blocks until it finishes. Concurrent
// callers share the run already in flight and receive its result.
func (s *CompanySyncService) SyncAll(ctx context.Context) models.SyncResult {
	s.inflight.Add(1)
	defer s.inflight.Done()
	return s.syncAll(ctx)
}

// SyncAsync starts a sync in the background. It returns false when a run is
// already in progress. The run outlives ctx's cancellation; Wait blocks on it.
func (s *CompanySyncService) SyncAsync(ctx context.Context) bool {
	if s.running.Load() {
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.syncAll(ctx)
	}()
	return true
}

// Wait blocks until every started run has finished or ctx is done.
func (s *CompanySyncService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncAll runs the flight detached from the caller that started it, so
// callers joining the same run are not cut short by that caller's cancellation.
func (s *CompanySyncService) syncAll(ctx context.Context) models.SyncResult {
	flightCtx := context.WithoutCancel(ctx)
	v, _, shared := s.group.Do(s.provider, func() (interface{}, error) {
		s.running.Store(true)
		defer s.running.Store(false)
		return s.run(flightCtx), nil
	})
	if shared {
		log.Debug().Str("provider", s.provider).Msg("Joined sync run already in progress")
	}
	return v.(models.SyncResult)
}

// Running reports whether a sync is in progress.
func (s *CompanySyncService) Running() bool {
	return s.running.Load()
}

// LastResult returns the result of the most recent completed run.
func (s *CompanySyncService) LastResult(ctx context.Context) (models.SyncResult, bool) {
	result, ok, err := s.results.Last(ctx)
	if err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("Failed to load last sync result")
		return models.SyncResult{}, false
	}
	return result, ok
}

func (s *CompanySyncService) run(ctx context.Context) models.SyncResult {
	result := models.NewSyncResult(s.provider, models.ResourceCompanies, s.now())
	logger := log.With().Str("provider", s.provider).Str("sync_id", result.ID).Logger()

	if !s.tokens.HasValidToken(ctx) {
		logger.Warn().Msg("No valid token, skipping company sync")
		result.Abort(s.now(), ErrAuthorizationRequired.Error())
		return s.finish(ctx, result, metrics.OutcomeSkipped)
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not obtain access token, skipping company sync")
		result.Abort(s.now(), ErrAuthorizationRequired.Error())
		return s.finish(ctx, result, metrics.OutcomeSkipped)
	}

	logger.Info().Int("page_size", s.pageSize).Msg("Starting company sync")

	var problems []string
	for pageNumber := 1; ; pageNumber++ {
		page, err := s.fetcher.ListCompanies(ctx, token, s.pageSize, pageNumber)
		if err != nil {
			// Pages already stored are kept
			result.Errors++
			problems = append(problems, fmt.Sprintf("page %d: %v", pageNumber, err))
			logger.Error().Err(err).Int("page", pageNumber).Msg("Failed to fetch companies page, aborting remaining pages")
			break
		}

		syncedAt := s.now()
		for _, remote := range page.Companies {
			result.Total++
			created, err := s.upsert(ctx, remote, syncedAt)
			if err != nil {
				result.Errors++
				metrics.SyncRecordsTotal.WithLabelValues(s.provider, models.ResourceCompanies, "error").Inc()
				if len(problems) < maxReportedProblems {
					problems = append(problems, fmt.Sprintf("company %q: %v", remote.ID, err))
				}
				logger.Error().Err(err).Str("external_id", remote.ID).Msg("Failed to store company")
				continue
			}
			if created {
				result.Created++
				metrics.SyncRecordsTotal.WithLabelValues(s.provider, models.ResourceCompanies, "created").Inc()
			} else {
				result.Updated++
				metrics.SyncRecordsTotal.WithLabelValues(s.provider, models.ResourceCompanies, "updated").Inc()
			}
		}

		logger.Debug().Int("page", pageNumber).Int("records", len(page.Companies)).Msg("Processed companies page")

		if len(page.Companies) < s.pageSize {
			break
		}
		if page.Matches > 0 && pageNumber*s.pageSize >= page.Matches {
			break
		}
	}

	result.Complete(s.now(), problems)
	outcome := metrics.OutcomeSuccess
	if !result.Success {
		outcome = metrics.OutcomeError
	}
	logger.Info().
		Int("total", result.Total).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", result.Errors).
		Msg("Company sync finished")
	return s.finish(ctx, result, outcome)
}

func (s *CompanySyncService) finish(ctx context.Context, result models.SyncResult, outcome string) models.SyncResult {
	metrics.SyncRunsTotal.WithLabelValues(s.provider, models.ResourceCompanies, outcome).Inc()
	if err := s.results.Save(ctx, result); err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("Failed to store sync result")
	}
	return result
}

// upsert writes remote into the local store keyed by its external ID.
// It reports whether a new row was created.
func (s *CompanySyncService) upsert(ctx context.Context, remote teamleader.Company, syncedAt time.Time) (bool, error) {
	if remote.ID == "" {
		return false, errMissingExternalID
	}
	company := toCompany(remote, syncedAt)

	_, err := s.companies.GetByExternalID(ctx, remote.ID)
	if errors.Is(err, repository.ErrCompanyNotFound) {
		if err := s.companies.Create(ctx, company); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, s.companies.UpdateSynced(ctx, company)
}

func toCompany(remote teamleader.Company, syncedAt time.Time) *models.Company {
	company := &models.Company{
		ExternalID: remote.ID,
		Name:       remote.Name,
		Email:      remote.PrimaryEmail(),
		Phone:      remote.PrimaryPhone(),
		Status:     remote.Status,
		SyncedAt:   syncedAt,
	}
	if remote.VATNumber != nil {
		company.VATNumber = *remote.VATNumber
	}
	if remote.Website != nil {
		company.Website = *remote.Website
	}
	if remote.BusinessType != nil {
		company.BusinessType = remote.BusinessType.ID
	}
	return company
}
