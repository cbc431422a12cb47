package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Config resolution metrics
	ConfigLoadsTotal   *prometheus.CounterVec
	ConfigSavesTotal   *prometheus.CounterVec
	ConfigLoadDuration prometheus.Histogram

	// Session metrics
	SessionEventsTotal *prometheus.CounterVec
	SigninsTotal       *prometheus.CounterVec
	SilentRenewsTotal  *prometheus.CounterVec

	// Enrichment pipeline metrics
	EnrichmentRunsTotal          *prometheus.CounterVec
	EnrichmentStageFailuresTotal *prometheus.CounterVec
	EnrichmentRunDuration        prometheus.Histogram
	TransportAttemptsTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConfigLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_config_loads_total",
				Help: "Total number of identity-provider config loads by source",
			},
			[]string{"source", "status"},
		),
		ConfigSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_config_saves_total",
				Help: "Total number of identity-provider config saves",
			},
			[]string{"status"},
		),
		ConfigLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "salesdash_config_load_duration_seconds",
				Help:    "Config load duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SessionEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_session_events_total",
				Help: "Total session events by kind",
			},
			[]string{"kind"},
		),
		SigninsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_signins_total",
				Help: "Total sign-in attempts",
			},
			[]string{"status"},
		),
		SilentRenewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_silent_renews_total",
				Help: "Total silent token renewals",
			},
			[]string{"status"},
		),
		EnrichmentRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_enrichment_runs_total",
				Help: "Total enrichment pipeline runs",
			},
			[]string{"trigger"},
		),
		EnrichmentStageFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_enrichment_stage_failures_total",
				Help: "Total enrichment stage failures by stage",
			},
			[]string{"stage"},
		),
		EnrichmentRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "salesdash_enrichment_run_duration_seconds",
				Help:    "Enrichment pipeline run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		TransportAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_internal_transport_attempts_total",
				Help: "Internal-profile transport attempts by tier and status",
			},
			[]string{"tier", "status"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_cache_hits_total",
				Help: "Local cache hits by key",
			},
			[]string{"key"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesdash_cache_misses_total",
				Help: "Local cache misses by key",
			},
			[]string{"key"},
		),
	}

	registry.MustRegister(
		m.ConfigLoadsTotal,
		m.ConfigSavesTotal,
		m.ConfigLoadDuration,
		m.SessionEventsTotal,
		m.SigninsTotal,
		m.SilentRenewsTotal,
		m.EnrichmentRunsTotal,
		m.EnrichmentStageFailuresTotal,
		m.EnrichmentRunDuration,
		m.TransportAttemptsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus metrics HTTP handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
