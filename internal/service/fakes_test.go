package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/repository"
	"github.com/vipul43/saas-bridge/internal/status"
	"github.com/vipul43/saas-bridge/internal/teamleader"
)

type mockTokenProvider struct {
	hasValidTokenFunc func(ctx context.Context) bool
	accessTokenFunc   func(ctx context.Context) (string, error)
}

func (m *mockTokenProvider) HasValidToken(ctx context.Context) bool {
	if m.hasValidTokenFunc != nil {
		return m.hasValidTokenFunc(ctx)
	}
	return true
}

func (m *mockTokenProvider) AccessToken(ctx context.Context) (string, error) {
	if m.accessTokenFunc != nil {
		return m.accessTokenFunc(ctx)
	}
	return "access-token", nil
}

type mockCompanyFetcher struct {
	mu    sync.Mutex
	pages []int

	listCompaniesFunc func(ctx context.Context, accessToken string, pageSize, pageNumber int) (*teamleader.CompanyPage, error)
	getCompanyFunc    func(ctx context.Context, accessToken, id string) (*teamleader.Company, error)
}

func (m *mockCompanyFetcher) ListCompanies(ctx context.Context, accessToken string, pageSize, pageNumber int) (*teamleader.CompanyPage, error) {
	m.mu.Lock()
	m.pages = append(m.pages, pageNumber)
	m.mu.Unlock()
	if m.listCompaniesFunc != nil {
		return m.listCompaniesFunc(ctx, accessToken, pageSize, pageNumber)
	}
	return &teamleader.CompanyPage{Page: pageNumber}, nil
}

func (m *mockCompanyFetcher) GetCompany(ctx context.Context, accessToken, id string) (*teamleader.Company, error) {
	if m.getCompanyFunc != nil {
		return m.getCompanyFunc(ctx, accessToken, id)
	}
	return nil, fmt.Errorf("company %s not found", id)
}

func (m *mockCompanyFetcher) requestedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pages...)
}

// upstream serves a fixed record set in pages, like companies.list.
func upstream(companies []teamleader.Company) func(ctx context.Context, accessToken string, pageSize, pageNumber int) (*teamleader.CompanyPage, error) {
	return func(ctx context.Context, accessToken string, pageSize, pageNumber int) (*teamleader.CompanyPage, error) {
		start := (pageNumber - 1) * pageSize
		if start > len(companies) {
			start = len(companies)
		}
		end := start + pageSize
		if end > len(companies) {
			end = len(companies)
		}
		return &teamleader.CompanyPage{Companies: companies[start:end], Page: pageNumber}, nil
	}
}

func remoteCompanies(n int) []teamleader.Company {
	out := make([]teamleader.Company, n)
	for i := range out {
		out[i] = teamleader.Company{
			ID:     fmt.Sprintf("tl-%03d", i+1),
			Name:   fmt.Sprintf("Company %d", i+1),
			Status: "active",
			Emails: []teamleader.Email{{Type: "primary", Email: fmt.Sprintf("info%d@example.test", i+1)}},
		}
	}
	return out
}

// memoryCompanyRepository mirrors the column rules of the real repositories:
// UpdateSynced leaves notes and local_tags alone.
type memoryCompanyRepository struct {
	mu        sync.Mutex
	companies map[string]models.Company
	failOn    map[string]error
}

func newMemoryCompanyRepository() *memoryCompanyRepository {
	return &memoryCompanyRepository{companies: map[string]models.Company{}, failOn: map[string]error{}}
}

func (r *memoryCompanyRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[externalID]
	if !ok {
		return nil, repository.ErrCompanyNotFound
	}
	return &c, nil
}

func (r *memoryCompanyRepository) Create(ctx context.Context, company *models.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[company.ExternalID]; ok {
		return err
	}
	company.ID = "local-" + company.ExternalID
	r.companies[company.ExternalID] = *company
	return nil
}

func (r *memoryCompanyRepository) UpdateSynced(ctx context.Context, company *models.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[company.ExternalID]; ok {
		return err
	}
	existing, ok := r.companies[company.ExternalID]
	if !ok {
		return repository.ErrCompanyNotFound
	}
	existing.Name = company.Name
	existing.VATNumber = company.VATNumber
	existing.Email = company.Email
	existing.Phone = company.Phone
	existing.Website = company.Website
	existing.BusinessType = company.BusinessType
	existing.Status = company.Status
	existing.SyncedAt = company.SyncedAt
	r.companies[company.ExternalID] = existing
	return nil
}

func (r *memoryCompanyRepository) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[externalID]; !ok {
		return false, nil
	}
	delete(r.companies, externalID)
	return true, nil
}

func (r *memoryCompanyRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.companies)
}

func newTestService(tokens *mockTokenProvider, fetcher *mockCompanyFetcher, repo *memoryCompanyRepository, pageSize int) (*CompanySyncService, *status.MemoryStore) {
	results := status.NewMemoryStore()
	return NewCompanySyncService(tokens, fetcher, repo, results, pageSize), results
}
