package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/saas-bridge/internal/metrics"
	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/teamleader"
)

func init() {
	log.Logger = zerolog.Nop()
}

func TestSyncAll_TwoPagesThenIdempotentRerun(t *testing.T) {
	fetcher := &mockCompanyFetcher{listCompaniesFunc: upstream(remoteCompanies(25))}
	repo := newMemoryCompanyRepository()
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, repo, 20)

	first := svc.SyncAll(context.Background())
	assert.True(t, first.Success)
	assert.Equal(t, 25, first.Total)
	assert.Equal(t, 25, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 0, first.Errors)
	assert.Equal(t, []int{1, 2}, fetcher.requestedPages())
	assert.Equal(t, 25, repo.count())
	require.NotNil(t, first.CompletedAt)

	second := svc.SyncAll(context.Background())
	assert.True(t, second.Success)
	assert.Equal(t, 25, second.Total)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 25, second.Updated)
	assert.Equal(t, 25, repo.count())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSyncAll_StopsAtReportedMatches(t *testing.T) {
	all := remoteCompanies(40)
	fetcher := &mockCompanyFetcher{}
	fetcher.listCompaniesFunc = func(ctx context.Context, token string, size, number int) (*teamleader.CompanyPage, error) {
		page, _ := upstream(all)(ctx, token, size, number)
		page.Matches = len(all)
		return page, nil
	}
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, newMemoryCompanyRepository(), 20)

	result := svc.SyncAll(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, 40, result.Total)
	assert.Equal(t, []int{1, 2}, fetcher.requestedPages(), "no empty trailing page request")
}

func TestSyncAll_PageFailureKeepsEarlierPages(t *testing.T) {
	all := remoteCompanies(100)
	fetcher := &mockCompanyFetcher{}
	fetcher.listCompaniesFunc = func(ctx context.Context, token string, size, number int) (*teamleader.CompanyPage, error) {
		if number == 3 {
			return nil, &teamleader.APIError{StatusCode: 502, Body: "bad gateway"}
		}
		return upstream(all)(ctx, token, size, number)
	}
	repo := newMemoryCompanyRepository()
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, repo, 20)

	result := svc.SyncAll(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, 40, result.Total)
	assert.Equal(t, 40, result.Created)
	assert.Equal(t, 1, result.Errors)
	assert.Contains(t, result.Message, "page 3")
	assert.Equal(t, []int{1, 2, 3}, fetcher.requestedPages())
	assert.Equal(t, 40, repo.count())
}

func TestSyncAll_RecordFailureContinues(t *testing.T) {
	all := remoteCompanies(25)
	all[4].ID = ""
	fetcher := &mockCompanyFetcher{listCompaniesFunc: upstream(all)}
	repo := newMemoryCompanyRepository()
	repo.failOn["tl-010"] = errors.New("constraint violation")
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, repo, 20)

	result := svc.SyncAll(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, 25, result.Total)
	assert.Equal(t, 23, result.Created)
	assert.Equal(t, 2, result.Errors)
	assert.Contains(t, result.Message, "constraint violation")
	assert.Contains(t, result.Message, "record has no id")
	assert.Equal(t, 23, repo.count())
}

func TestSyncAll_WithoutTokenSkips(t *testing.T) {
	before := testutil.ToFloat64(metrics.SyncRunsTotal.WithLabelValues(models.ProviderTeamleader, models.ResourceCompanies, metrics.OutcomeSkipped))
	fetcher := &mockCompanyFetcher{listCompaniesFunc: upstream(remoteCompanies(5))}
	tokens := &mockTokenProvider{hasValidTokenFunc: func(ctx context.Context) bool { return false }}
	svc, results := newTestService(tokens, fetcher, newMemoryCompanyRepository(), 20)

	result := svc.SyncAll(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "authorization required", result.Message)
	assert.Zero(t, result.Total)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Updated)
	assert.Empty(t, fetcher.requestedPages())

	stored, ok, err := results.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.ID, stored.ID)

	after := testutil.ToFloat64(metrics.SyncRunsTotal.WithLabelValues(models.ProviderTeamleader, models.ResourceCompanies, metrics.OutcomeSkipped))
	assert.Equal(t, before+1, after)
}

func TestSyncAll_AccessTokenErrorSkips(t *testing.T) {
	fetcher := &mockCompanyFetcher{}
	tokens := &mockTokenProvider{accessTokenFunc: func(ctx context.Context) (string, error) {
		return "", errors.New("revoked meanwhile")
	}}
	svc, _ := newTestService(tokens, fetcher, newMemoryCompanyRepository(), 20)

	result := svc.SyncAll(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "authorization required", result.Message)
	assert.Empty(t, fetcher.requestedPages())
}

func TestSyncAll_KeepsLocalFields(t *testing.T) {
	notes := "key account"
	repo := newMemoryCompanyRepository()
	repo.companies["tl-001"] = models.Company{ID: "local-1", ExternalID: "tl-001", Name: "Old name", Notes: &notes}
	fetcher := &mockCompanyFetcher{listCompaniesFunc: upstream(remoteCompanies(1))}
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, repo, 20)

	result := svc.SyncAll(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Updated)

	stored, err := repo.GetByExternalID(context.Background(), "tl-001")
	require.NoError(t, err)
	assert.Equal(t, "Company 1", stored.Name)
	assert.Equal(t, "info1@example.test", stored.Email)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "key account", *stored.Notes)
	assert.Equal(t, "local-1", stored.ID)
}

func TestSyncAll_ConcurrentCallersShareOneRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &mockCompanyFetcher{}
	fetcher.listCompaniesFunc = func(ctx context.Context, token string, size, number int) (*teamleader.CompanyPage, error) {
		once.Do(func() { close(entered) })
		<-release
		return upstream(remoteCompanies(3))(ctx, token, size, number)
	}
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, newMemoryCompanyRepository(), 20)

	results := make([]models.SyncResult, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = svc.SyncAll(context.Background())
	}()
	<-entered
	assert.True(t, svc.Running())
	assert.False(t, svc.SyncAsync(context.Background()), "async trigger while running must not start a second run")

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = svc.SyncAll(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, results[0].ID, results[1].ID)
	assert.Equal(t, []int{1}, fetcher.requestedPages())
	assert.False(t, svc.Running())
}

func TestSyncAsync_SurvivesCallerCancellation(t *testing.T) {
	fetcher := &mockCompanyFetcher{}
	fetcher.listCompaniesFunc = func(ctx context.Context, token string, size, number int) (*teamleader.CompanyPage, error) {
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled: %w", err)
		}
		return upstream(remoteCompanies(2))(ctx, token, size, number)
	}
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, newMemoryCompanyRepository(), 20)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, svc.SyncAsync(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		result, ok := svc.LastResult(context.Background())
		return ok && result.Success && result.Total == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncAll_CancelledCallerDoesNotCutSharedRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &mockCompanyFetcher{}
	fetcher.listCompaniesFunc = func(ctx context.Context, token string, size, number int) (*teamleader.CompanyPage, error) {
		once.Do(func() { close(entered) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled: %w", err)
		}
		return upstream(remoteCompanies(3))(ctx, token, size, number)
	}
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, newMemoryCompanyRepository(), 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan models.SyncResult, 1)
	go func() { first <- svc.SyncAll(ctx) }()
	<-entered

	second := make(chan models.SyncResult, 1)
	go func() { second <- svc.SyncAll(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	live := <-second
	assert.True(t, live.Success, live.Message)
	assert.Equal(t, 3, live.Total)
	assert.Equal(t, live.ID, (<-first).ID)
}

func TestWait_BlocksUntilBackgroundRunFinishes(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &mockCompanyFetcher{}
	fetcher.listCompaniesFunc = func(ctx context.Context, token string, size, number int) (*teamleader.CompanyPage, error) {
		once.Do(func() { close(entered) })
		<-release
		return upstream(remoteCompanies(2))(ctx, token, size, number)
	}
	repo := newMemoryCompanyRepository()
	svc, _ := newTestService(&mockTokenProvider{}, fetcher, repo, 20)

	require.True(t, svc.SyncAsync(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, svc.Wait(context.Background()))
	assert.Equal(t, 2, repo.count(), "all upserts land before Wait returns")
	_, ok := svc.LastResult(context.Background())
	assert.True(t, ok)
}

func TestWait_Idle(t *testing.T) {
	svc, _ := newTestService(&mockTokenProvider{}, &mockCompanyFetcher{}, newMemoryCompanyRepository(), 20)
	assert.NoError(t, svc.Wait(context.Background()))
}

func TestLastResult_NoneYet(t *testing.T) {
	svc, _ := newTestService(&mockTokenProvider{}, &mockCompanyFetcher{}, newMemoryCompanyRepository(), 20)
	_, ok := svc.LastResult(context.Background())
	assert.False(t, ok)
}

func TestNewCompanySyncService_DefaultPageSize(t *testing.T) {
	svc, _ := newTestService(&mockTokenProvider{}, &mockCompanyFetcher{}, newMemoryCompanyRepository(), 0)
	assert.Equal(t, DefaultPageSize, svc.pageSize)
}

func TestToCompany(t *testing.T) {
	vat := "BE0899623035"
	site := "https://acme.test"
	syncedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	remote := teamleader.Company{
		ID:           "tl-1",
		Name:         "Acme",
		VATNumber:    &vat,
		Website:      &site,
		BusinessType: &teamleader.BusinessType{Type: "businessType", ID: "bt-9"},
		Telephones:   []teamleader.Telephone{{Type: "phone", Number: "+32 1"}},
		Status:       "active",
	}

	company := toCompany(remote, syncedAt)
	assert.Equal(t, "tl-1", company.ExternalID)
	assert.Equal(t, vat, company.VATNumber)
	assert.Equal(t, site, company.Website)
	assert.Equal(t, "bt-9", company.BusinessType)
	assert.Equal(t, "+32 1", company.Phone)
	assert.Equal(t, "", company.Email)
	assert.Equal(t, syncedAt, company.SyncedAt)
	assert.Nil(t, company.Notes)
}
