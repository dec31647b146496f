package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/saas-bridge/internal/models"
	"github.com/vipul43/saas-bridge/internal/oauth"
	"github.com/vipul43/saas-bridge/internal/service"
)

const stateCookie = "tl_oauth_state"

// TokenManager is the slice of oauth.Manager the handlers use.
type TokenManager interface {
	AuthorizationURL(state string) string
	ExchangeAuthorizationCode(ctx context.Context, code string) bool
	RevokeToken(ctx context.Context) bool
	Status(ctx context.Context) oauth.TokenStatus
}

// CompanySyncer is the slice of service.CompanySyncService the handlers use.
type CompanySyncer interface {
	SyncAsync(ctx context.Context) bool
	LastResult(ctx context.Context) (models.SyncResult, bool)
	HandleWebhook(ctx context.Context, event service.WebhookEvent) error
}

// TeamleaderAPI serves the /api/teamleader routes. Every response except the
// authorize redirect is a 200 with a success flag and a message.
type TeamleaderAPI struct {
	tokens        TokenManager
	syncer        CompanySyncer
	webhookSecret string
	secureCookies bool
}

func NewTeamleaderAPI(tokens TokenManager, syncer CompanySyncer, webhookSecret string, secureCookies bool) *TeamleaderAPI {
	return &TeamleaderAPI{
		tokens:        tokens,
		syncer:        syncer,
		webhookSecret: webhookSecret,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers the Teamleader routes.
func (a *TeamleaderAPI) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/teamleader")
	g.GET("/oauth/authorize", a.AuthorizeHandler)
	g.GET("/oauth/callback", a.CallbackHandler)
	g.GET("/oauth/status", a.StatusHandler)
	g.POST("/oauth/revoke", a.RevokeHandler)
	g.POST("/sync/companies", a.SyncCompaniesHandler)
	g.GET("/sync/companies/status", a.SyncStatusHandler)
	g.POST("/webhooks", a.WebhookHandler)
}

// AuthorizeHandler redirects the administrator to the consent page. The state
// is remembered in a short-lived cookie and checked on callback.
func (a *TeamleaderAPI) AuthorizeHandler(c *gin.Context) {
	state := uuid.New().String()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 600, "/api/teamleader/oauth", "", a.secureCookies, true)
	c.Redirect(http.StatusFound, a.tokens.AuthorizationURL(state))
}

func (a *TeamleaderAPI) CallbackHandler(c *gin.Context) {
	if denied := c.Query("error"); denied != "" {
		log.Warn().Str("error", denied).Msg("Authorization denied by user")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "authorization denied: " + denied})
		return
	}

	expected, err := c.Cookie(stateCookie)
	state := c.Query("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		log.Warn().Msg("OAuth callback with missing or mismatched state")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "invalid authorization state, start again"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/api/teamleader/oauth", "", a.secureCookies, true)

	if !a.tokens.ExchangeAuthorizationCode(c.Request.Context(), c.Query("code")) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "authorization failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "authorization successful"})
}

func (a *TeamleaderAPI) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.tokens.Status(c.Request.Context()))
}

func (a *TeamleaderAPI) RevokeHandler(c *gin.Context) {
	if !a.tokens.RevokeToken(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "no token to revoke"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "token revoked"})
}

// SyncCompaniesHandler starts a background sync and returns immediately.
func (a *TeamleaderAPI) SyncCompaniesHandler(c *gin.Context) {
	if !a.syncer.SyncAsync(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "sync already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "sync started"})
}

func (a *TeamleaderAPI) SyncStatusHandler(c *gin.Context) {
	result, ok := a.syncer.LastResult(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "no sync has run yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *TeamleaderAPI) WebhookHandler(c *gin.Context) {
	if a.webhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(c.Query("secret")), []byte(a.webhookSecret)) != 1 {
		log.Warn().Str("ip", c.ClientIP()).Msg("Webhook rejected: bad secret")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "invalid webhook secret"})
		return
	}

	var event service.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "invalid webhook payload"})
		return
	}

	// Deletions need no upstream call, so the secret is the only thing guarding them
	if a.webhookSecret == "" && event.Type == service.EventCompanyDeleted {
		log.Warn().Str("subject_id", event.Subject.ID).Msg("Webhook rejected: company.deleted requires a webhook secret")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "company.deleted requires a configured webhook secret"})
		return
	}

	if err := a.syncer.HandleWebhook(c.Request.Context(), event); err != nil {
		log.Error().Err(err).Str("event", event.Type).Str("subject_id", event.Subject.ID).Msg("Webhook handling failed")
		msg := "webhook processing failed"
		if errors.Is(err, service.ErrAuthorizationRequired) {
			msg = "authorization required"
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "message": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "webhook processed"})
}
