package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

var (
	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saas_bridge_token_refresh_total",
		Help: "OAuth token refresh attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	TokenExchangeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saas_bridge_token_exchange_total",
		Help: "Authorization-code exchanges by provider and outcome.",
	}, []string{"provider", "outcome"})

	SyncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saas_bridge_sync_runs_total",
		Help: "Completed sync runs by provider, resource and outcome.",
	}, []string{"provider", "resource", "outcome"})

	SyncRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saas_bridge_sync_records_total",
		Help: "Records handled by sync runs, by action (created, updated, error).",
	}, []string{"provider", "resource", "action"})
)

// Register adds the collectors to reg. Already-registered collectors are logged and skipped.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics")
		return
	}
	for _, c := range []prometheus.Collector{TokenRefreshTotal, TokenExchangeTotal, SyncRunsTotal, SyncRecordsTotal} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
}
