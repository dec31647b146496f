package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Webhook event types handled by HandleWebhook.
const (
	EventCompanyAdded   = "company.added"
	EventCompanyUpdated = "company.updated"
	EventCompanyDeleted = "company.deleted"
)

type WebhookSubject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// WebhookEvent is the body Teamleader posts to a registered webhook URL.
type WebhookEvent struct {
	Type    string         `json:"type"`
	Subject WebhookSubject `json:"subject"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
}

// HandleWebhook reconciles one company change into the local store.
// Added and updated companies are re-fetched and upserted through the same
// path as the bulk sync; deleted ones are removed. Other events are ignored.
func (s *CompanySyncService) HandleWebhook(ctx context.Context, event WebhookEvent) error {
	logger := log.With().Str("provider", s.provider).Str("event", event.Type).Str("subject_id", event.Subject.ID).Logger()

	switch event.Type {
	case EventCompanyAdded, EventCompanyUpdated, EventCompanyDeleted:
	default:
		logger.Debug().Msg("Ignoring webhook event")
		return nil
	}
	if event.Subject.ID == "" {
		return fmt.Errorf("webhook %s: %w", event.Type, errMissingExternalID)
	}

	if event.Type == EventCompanyDeleted {
		deleted, err := s.companies.DeleteByExternalID(ctx, event.Subject.ID)
		if err != nil {
			return fmt.Errorf("failed to delete company: %w", err)
		}
		logger.Info().Bool("existed", deleted).Msg("Company removed by webhook")
		return nil
	}

	if !s.tokens.HasValidToken(ctx) {
		logger.Warn().Msg("No valid token, dropping webhook event")
		return ErrAuthorizationRequired
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorizationRequired, err)
	}

	remote, err := s.fetcher.GetCompany(ctx, token, event.Subject.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch company: %w", err)
	}
	created, err := s.upsert(ctx, *remote, s.now())
	if err != nil {
		return fmt.Errorf("failed to store company: %w", err)
	}
	logger.Info().Bool("created", created).Msg("Company reconciled from webhook")
	return nil
}
