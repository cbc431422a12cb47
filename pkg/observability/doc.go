// Package observability provides structured logging, Prometheus metrics and
// health probes for the salesdash auth subsystem.
//
// # Logging
//
// Logger wraps log/slog with a JSON handler and field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("subject", user.Subject).Info("user loaded")
//
// # Metrics
//
// Metrics registers counters and histograms for config resolution, session
// events and the enrichment pipeline:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.EnrichmentStageFailuresTotal.WithLabelValues("directory").Inc()
//
// # Health
//
// HealthChecker exposes Liveness and Readiness handlers. A broken durable
// store only degrades readiness since the config adapter falls back to the
// local cache.
package observability
