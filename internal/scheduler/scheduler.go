package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/saas-bridge/internal/config"
	"github.com/vipul43/saas-bridge/internal/models"
)

// Syncer runs a blocking sync.
type Syncer interface {
	SyncAll(ctx context.Context) models.SyncResult
}

// TokenChecker reports whether the provider is authorized.
type TokenChecker interface {
	HasValidToken(ctx context.Context) bool
}

// Scheduler triggers one sync shortly after startup and then on every cron tick.
type Scheduler struct {
	enabled      bool
	startupDelay time.Duration
	schedule     cron.Schedule
	syncer       Syncer
	tokens       TokenChecker
	now          func() time.Time
}

// New parses cfg.Cron as a standard five-field cron expression.
func New(cfg config.SyncConfig, syncer Syncer, tokens TokenChecker) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_CRON %q: %w", cfg.Cron, err)
	}
	return &Scheduler{
		enabled:      cfg.Enabled,
		startupDelay: cfg.StartupDelay,
		schedule:     schedule,
		syncer:       syncer,
		tokens:       tokens,
		now:          time.Now,
	}, nil
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.enabled {
		log.Info().Msg("Scheduled sync disabled")
		return nil
	}

	log.Info().
		Dur("startup_delay", s.startupDelay).
		Time("next_scheduled", s.schedule.Next(s.now())).
		Msg("Starting sync scheduler")

	startup := time.NewTimer(s.startupDelay)
	defer startup.Stop()

	next := time.NewTimer(s.untilNext())
	defer next.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler shutting down...")
			return ctx.Err()
		case <-startup.C:
			s.runOnce(ctx, "startup")
		case <-next.C:
			s.runOnce(ctx, "schedule")
			next.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) untilNext() time.Duration {
	now := s.now()
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) {
	if !s.tokens.HasValidToken(ctx) {
		log.Warn().Str("trigger", trigger).Msg("Skipping scheduled sync: no valid token, authorize the integration first")
		return
	}

	result := s.syncer.SyncAll(ctx)
	event := log.Info()
	if !result.Success {
		event = log.Warn()
	}
	event.Str("trigger", trigger).
		Str("sync_id", result.ID).
		Int("total", result.Total).
		Int("errors", result.Errors).
		Msg(result.Message)
}
