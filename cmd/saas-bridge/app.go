package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/saas-bridge/internal/config"
	"github.com/vipul43/saas-bridge/internal/database"
	"github.com/vipul43/saas-bridge/internal/metrics"
	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/mongostore"
	"github.com/vipul43/saas-bridge/internal/oauth"
	"github.com/vipul43/saas-bridge/internal/repository"
	"github.com/vipul43/saas-bridge/internal/service"
	"github.com/vipul43/saas-bridge/internal/status"
	"github.com/vipul43/saas-bridge/internal/teamleader"
	"github.com/vipul43/saas-bridge/internal/workspace"
)

// app holds the wired components shared by the serve and sync commands.
type app struct {
	cfg      *config.Config
	tokens   *oauth.Manager
	syncer   *service.CompanySyncService
	licenses *workspace.Client
	registry *prometheus.Registry
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	credentials, companies, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	results, err := a.openResultStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	httpClient := teamleader.NewHTTPClient(cfg.Teamleader.ConnectTimeout, cfg.Teamleader.ReadTimeout)
	a.tokens = oauth.NewManager(oauth.Config{
		Provider:     models.ProviderTeamleader,
		ClientID:     cfg.Teamleader.ClientID,
		ClientSecret: cfg.Teamleader.ClientSecret,
		AuthorizeURL: cfg.Teamleader.AuthorizeURL,
		TokenURL:     cfg.Teamleader.TokenURL,
		RedirectURI:  cfg.Teamleader.RedirectURI,
	}, oauth.NewTokenStore(credentials), httpClient)

	client := teamleader.NewClient(cfg.Teamleader.APIURL, httpClient)
	a.syncer = service.NewCompanySyncService(a.tokens, client, companies, results, cfg.Teamleader.PageSize)

	a.licenses = newLicenseClient(ctx, cfg.Google)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(a.registry)

	return a, nil
}

func (a *app) openStorage(ctx context.Context) (oauth.CredentialRepository, service.CompanyRepository, error) {
	switch a.cfg.StorageBackend {
	case config.StorageMongo:
		db, err := mongostore.Connect(ctx, a.cfg.MongoURI, a.cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				log.Error().Err(err).Msg("Failed to disconnect MongoDB")
			}
		})
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return nil, nil, err
		}
		log.Info().Str("database", a.cfg.MongoDatabase).Msg("MongoDB connected")
		return mongostore.NewCredentialStore(db), mongostore.NewCompanyStore(db), nil

	default:
		db, err := database.Connect(a.cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() {
			if err := database.Close(db); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		})
		log.Info().Msg("Database connected successfully")

		if err := database.RunMigrations(db); err != nil {
			return nil, nil, err
		}
		return repository.NewCredentialRepository(db), repository.NewCompanyRepository(db), nil
	}
}

func (a *app) openResultStore(ctx context.Context) (service.ResultStore, error) {
	if a.cfg.RedisURL == "" {
		return status.NewMemoryStore(), nil
	}
	client, err := status.Connect(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	log.Info().Msg("Redis connected, sync status is shared")
	return status.NewRedisStore(client, "saas-bridge", models.ProviderTeamleader, models.ResourceCompanies), nil
}

// newLicenseClient returns nil when Workspace licensing is not configured or
// the credentials cannot be loaded.
func newLicenseClient(ctx context.Context, cfg config.GoogleConfig) *workspace.Client {
	if cfg.CredentialsFile == "" {
		log.Warn().Msg("GOOGLE_CREDENTIALS_FILE not set, Workspace licensing will not work")
		return nil
	}
	if !cfg.Enabled() {
		log.Warn().Msg("GOOGLE_CUSTOMER_ID not set, Workspace licensing will not work")
		return nil
	}
	licenses, err := workspace.NewClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Workspace licensing client unavailable")
		return nil
	}
	return licenses
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
