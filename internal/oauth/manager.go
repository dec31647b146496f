package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/vipul43/saas-bridge/internal/metrics"
	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/repository"
)

// ErrNotAuthorized means no usable access token exists and an administrator
// has to run the authorization-code flow again.
var ErrNotAuthorized = errors.New("not authorized")

// TokenState is the lifecycle state of a provider's credential.
type TokenState int

const (
	StateNoToken TokenState = iota
	StateValid
	StateExpired
	StateRefreshFailed
)

func (s TokenState) String() string {
	switch s {
	case StateValid:
		return "VALID"
	case StateExpired:
		return "EXPIRED"
	case StateRefreshFailed:
		return "REFRESH_FAILED"
	default:
		return "NO_TOKEN"
	}
}

// Config describes one OAuth provider.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
}

// TokenStatus is the read-only view served by the status endpoint.
type TokenStatus struct {
	Provider   string     `json:"provider"`
	Authorized bool       `json:"authorized"`
	Expired    bool       `json:"expired"`
	State      string     `json:"state"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt  *time.Time `json:"lastUpdated,omitempty"`
	LastUsedAt *time.Time `json:"lastUsed,omitempty"`
	Message    string     `json:"message"`
}

// Manager drives the token lifecycle for a single provider: authorization
// code exchange, refresh on expiry, revoke.
type Manager struct {
	provider   string
	store      *TokenStore
	oauth      *oauth2.Config
	httpClient *http.Client
	group      singleflight.Group
}

// NewManager builds a Manager. httpClient carries the outbound timeouts and
// may be nil to use http.DefaultClient.
func NewManager(cfg Config, store *TokenStore, httpClient *http.Client) *Manager {
	return &Manager{
		provider: cfg.Provider,
		store:    store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Provider returns the provider name this manager is bound to.
func (m *Manager) Provider() string {
	return m.provider
}

// State loads the credential and classifies it. It never refreshes.
func (m *Manager) State(ctx context.Context) (TokenState, error) {
	cred, err := m.store.Get(ctx, m.provider)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return StateNoToken, nil
	}
	if err != nil {
		return StateNoToken, err
	}
	return m.stateOf(cred), nil
}

func (m *Manager) stateOf(cred *models.OAuthCredential) TokenState {
	if !m.store.IsExpired(cred) {
		return StateValid
	}
	if cred.RefreshFailedAt != nil {
		return StateRefreshFailed
	}
	if !cred.HasRefreshToken() {
		return StateNoToken
	}
	return StateExpired
}

// HasValidToken reports whether a non-expired token is available, refreshing
// an expired one first when a refresh token is stored.
func (m *Manager) HasValidToken(ctx context.Context) bool {
	_, err := m.ensureValid(ctx)
	return err == nil
}

// AccessToken returns a usable access token and records the use.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	cred, err := m.ensureValid(ctx)
	if err != nil {
		return "", err
	}
	if err := m.store.MarkUsed(ctx, m.provider); err != nil {
		log.Warn().Err(err).Str("provider", m.provider).Msg("Failed to mark token as used")
	}
	return cred.AccessToken, nil
}

func (m *Manager) ensureValid(ctx context.Context) (*models.OAuthCredential, error) {
	cred, err := m.store.Get(ctx, m.provider)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, fmt.Errorf("%w: no credential stored for %s", ErrNotAuthorized, m.provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	switch m.stateOf(cred) {
	case StateValid:
		return cred, nil
	case StateExpired:
		return m.refresh(ctx)
	case StateRefreshFailed:
		return nil, fmt.Errorf("%w: refresh token for %s was rejected", ErrNotAuthorized, m.provider)
	default:
		return nil, fmt.Errorf("%w: token for %s expired and no refresh token is stored", ErrNotAuthorized, m.provider)
	}
}

// refresh collapses concurrent refreshes of the same provider into one call.
// The flight ignores the starting caller's cancellation; the HTTP client
// timeout bounds it.
func (m *Manager) refresh(ctx context.Context) (*models.OAuthCredential, error) {
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := m.group.Do(m.provider, func() (interface{}, error) {
		// Recheck inside the flight: an earlier flight may have refreshed already.
		cred, err := m.store.Get(flightCtx, m.provider)
		if err != nil {
			return nil, fmt.Errorf("failed to load credential: %w", err)
		}
		switch m.stateOf(cred) {
		case StateValid:
			return cred, nil
		case StateExpired:
			return m.doRefresh(flightCtx, cred)
		default:
			return nil, fmt.Errorf("%w: %s cannot be refreshed", ErrNotAuthorized, m.provider)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.OAuthCredential), nil
}

func (m *Manager) doRefresh(ctx context.Context, cred *models.OAuthCredential) (*models.OAuthCredential, error) {
	oldRefresh := *cred.RefreshToken
	log.Info().Str("provider", m.provider).Msg("Access token expired, refreshing")

	tok, err := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: oldRefresh}).Token()
	if err != nil {
		if isRejected(err) {
			metrics.TokenRefreshTotal.WithLabelValues(m.provider, metrics.OutcomeRejected).Inc()
			log.Error().Err(err).Str("provider", m.provider).Msg("Refresh token rejected, re-authorization required")
			if markErr := m.store.MarkRefreshFailed(ctx, m.provider); markErr != nil {
				log.Error().Err(markErr).Str("provider", m.provider).Msg("Failed to record refresh failure")
			}
			return nil, fmt.Errorf("%w: refresh rejected by %s: %v", ErrNotAuthorized, m.provider, err)
		}
		metrics.TokenRefreshTotal.WithLabelValues(m.provider, metrics.OutcomeError).Inc()
		log.Warn().Err(err).Str("provider", m.provider).Msg("Token refresh failed, will retry on next run")
		return nil, fmt.Errorf("%w: refresh failed for %s: %v", ErrNotAuthorized, m.provider, err)
	}

	updated := *cred
	updated.AccessToken = tok.AccessToken
	updated.AccessTokenExpiresAt = expiryOf(tok)
	updated.RefreshFailedAt = nil
	// Refresh token is replaced only when the provider rotated it
	if tok.RefreshToken != "" && tok.RefreshToken != oldRefresh {
		rotated := tok.RefreshToken
		updated.RefreshToken = &rotated
	}
	if tok.TokenType != "" {
		updated.TokenType = tok.TokenType
	}
	if scope := scopeOf(tok); scope != "" {
		updated.Scope = scope
	}

	if err := m.store.Save(ctx, &updated); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(m.provider, metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	metrics.TokenRefreshTotal.WithLabelValues(m.provider, metrics.OutcomeSuccess).Inc()
	event := log.Info().Str("provider", m.provider)
	if updated.AccessTokenExpiresAt != nil {
		event = event.Time("expires_at", *updated.AccessTokenExpiresAt)
	}
	event.Msg("Token refreshed")
	return &updated, nil
}

// AuthorizationURL builds the provider's consent URL. The result depends only
// on the configuration and state.
func (m *Manager) AuthorizationURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// ExchangeAuthorizationCode trades a freshly granted code for a token pair and
// stores it. Failures are logged and reported as false.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code string) bool {
	if code == "" {
		log.Warn().Str("provider", m.provider).Msg("Empty authorization code")
		return false
	}

	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		metrics.TokenExchangeTotal.WithLabelValues(m.provider, metrics.OutcomeError).Inc()
		log.Error().Err(err).Str("provider", m.provider).Msg("Authorization code exchange failed")
		return false
	}

	cred := &models.OAuthCredential{
		Provider:             m.provider,
		AccessToken:          tok.AccessToken,
		AccessTokenExpiresAt: expiryOf(tok),
		TokenType:            tok.TokenType,
		Scope:                scopeOf(tok),
	}
	if tok.RefreshToken != "" {
		refresh := tok.RefreshToken
		cred.RefreshToken = &refresh
	}

	if err := m.store.Save(ctx, cred); err != nil {
		metrics.TokenExchangeTotal.WithLabelValues(m.provider, metrics.OutcomeError).Inc()
		log.Error().Err(err).Str("provider", m.provider).Msg("Failed to store exchanged token")
		return false
	}

	metrics.TokenExchangeTotal.WithLabelValues(m.provider, metrics.OutcomeSuccess).Inc()
	log.Info().Str("provider", m.provider).Bool("has_refresh_token", cred.HasRefreshToken()).Msg("Authorization completed")
	return true
}

// RevokeToken deletes the stored credential, forcing re-authorization.
// Returns false when nothing was stored.
func (m *Manager) RevokeToken(ctx context.Context) bool {
	deleted, err := m.store.Delete(ctx, m.provider)
	if err != nil {
		log.Error().Err(err).Str("provider", m.provider).Msg("Failed to revoke token")
		return false
	}
	if deleted {
		log.Info().Str("provider", m.provider).Msg("Token revoked")
	}
	return deleted
}

// Status reports the stored credential without refreshing it.
func (m *Manager) Status(ctx context.Context) TokenStatus {
	status := TokenStatus{Provider: m.provider, State: StateNoToken.String()}

	cred, err := m.store.Get(ctx, m.provider)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		status.Expired = true
		status.Message = "not authorized"
		return status
	}
	if err != nil {
		log.Error().Err(err).Str("provider", m.provider).Msg("Failed to load credential status")
		status.Expired = true
		status.Message = "failed to load credential"
		return status
	}

	state := m.stateOf(cred)
	updatedAt := cred.UpdatedAt
	status.State = state.String()
	status.Expired = m.store.IsExpired(cred)
	status.Authorized = state == StateValid || state == StateExpired
	status.ExpiresAt = cred.AccessTokenExpiresAt
	status.UpdatedAt = &updatedAt
	status.LastUsedAt = cred.LastUsedAt

	switch state {
	case StateValid:
		status.Message = "authorized"
	case StateExpired:
		status.Message = "access token expired, will refresh on next use"
	case StateRefreshFailed:
		status.Message = "refresh token rejected, re-authorization required"
	default:
		status.Message = "access token expired and no refresh token stored, re-authorization required"
	}
	return status
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// isRejected reports a 4xx from the token endpoint, i.e. the provider refused
// the grant rather than being unavailable.
func isRejected(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode >= 400 && re.Response.StatusCode < 500
	}
	return false
}

func expiryOf(tok *oauth2.Token) *time.Time {
	if tok.Expiry.IsZero() {
		return nil
	}
	expiry := tok.Expiry
	return &expiry
}

func scopeOf(tok *oauth2.Token) string {
	if scope, ok := tok.Extra("scope").(string); ok {
		return scope
	}
	return ""
}
