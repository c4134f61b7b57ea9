// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SessionsStarted  prometheus.Counter
	SessionsArchived prometheus.Counter
	SessionRollovers prometheus.Counter
	SessionTimeouts  prometheus.Counter
	EntriesCaptured  prometheus.Counter
	CommitConflicts  prometheus.Counter
	CommandsHandled  *prometheus.CounterVec

	// Histograms (seconds)
	StoreCreateDuration prometheus.Observer

	// Gauges
	LiveSessionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_sessions_started_total", Help: "Number of recording sessions started"})
		SessionsArchived = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_sessions_archived_total", Help: "Number of recording sessions committed to the archive"})
		SessionRollovers = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_session_rollovers_total", Help: "Number of automatic size-bound rollovers"})
		SessionTimeouts = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_session_timeouts_total", Help: "Number of sessions auto-stopped by inactivity timeout"})
		EntriesCaptured = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_entries_captured_total", Help: "Number of chat messages captured into live sessions"})
		CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_commit_conflicts_total", Help: "Number of archive commits rejected by title conflict"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "scribe_commands_handled_total", Help: "Number of operator commands handled, by command"}, []string{"command"})
		StoreCreateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "scribe_store_create_duration_seconds", Help: "Archive create duration seconds", Buckets: prometheus.DefBuckets})
		LiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "scribe_live_sessions", Help: "Current number of live recording sessions"})
	})
}

// SetLiveSessions records the current live session count.
func SetLiveSessions(n int) {
	if LiveSessionsGauge != nil {
		LiveSessionsGauge.Set(float64(n))
	}
}

// CountCommand increments the per-command counter if metrics are initialized.
func CountCommand(name string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(name).Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
