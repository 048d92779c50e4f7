// Package metrics exposes the EDIRE sync counters as Prometheus collectors.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
)

const namespace = "edire"

// Operation statuses recorded on edire_operation_runs_total
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusBusy    = "busy"
)

// SyncMetrics holds the collectors of one registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type SyncMetrics struct {
	registry *prometheus.Registry

	documents       *prometheus.CounterVec
	protectedWrites *prometheus.CounterVec
	legacyUnmatched *prometheus.CounterVec
	ambiguous       *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
}

// NewSyncMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors
func NewSyncMetrics() *SyncMetrics {
	m := &SyncMetrics{registry: prometheus.NewRegistry()}

	m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_processed_total",
		Help:      "External documents processed, by source and outcome.",
	}, []string{"source", "outcome"})

	m.protectedWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protected_write_blocked_total",
		Help:      "Field writes dropped by the protected-field guard.",
	}, []string{"source"})

	m.legacyUnmatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "legacy_unmatched_total",
		Help:      "Documents dated before the legacy cutoff with no ledger match.",
	}, []string{"source"})

	m.ambiguous = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolution_ambiguous_total",
		Help:      "Resolutions abandoned because more than one candidate matched.",
	}, []string{"source", "entity"})

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_runs_total",
		Help:      "Named operation runs, by operation, source and status.",
	}, []string{"operation", "source", "status"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Wall-clock duration of named operation runs.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 120},
	}, []string{"operation", "source"})

	m.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "operation_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run.",
	}, []string{"operation", "source"})

	m.registry.MustRegister(
		m.documents,
		m.protectedWrites,
		m.legacyUnmatched,
		m.ambiguous,
		m.runs,
		m.runDuration,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// DocumentProcessed counts one document outcome
func (m *SyncMetrics) DocumentProcessed(sourceID, outcome string) {
	m.documents.WithLabelValues(sourceID, outcome).Inc()
}

// ProtectedWriteBlocked counts guard-dropped field writes
func (m *SyncMetrics) ProtectedWriteBlocked(sourceID string, fields int) {
	if fields <= 0 {
		return
	}
	m.protectedWrites.WithLabelValues(sourceID).Add(float64(fields))
}

// LegacyUnmatched counts one legacy document without a ledger match
func (m *SyncMetrics) LegacyUnmatched(sourceID string) {
	m.legacyUnmatched.WithLabelValues(sourceID).Inc()
}

// Ambiguous counts one ambiguous resolution
func (m *SyncMetrics) Ambiguous(sourceID, entity string) {
	m.ambiguous.WithLabelValues(sourceID, entity).Inc()
}

// ObserveRun records one named operation run. A run skipped because the source
// was busy is counted but not timed.
func (m *SyncMetrics) ObserveRun(operation, sourceID string, d time.Duration, err error) {
	switch {
	case errors.Is(err, integration.ErrSourceBusy):
		m.runs.WithLabelValues(operation, sourceID, StatusBusy).Inc()
		return
	case err != nil:
		m.runs.WithLabelValues(operation, sourceID, StatusFailure).Inc()
	default:
		m.runs.WithLabelValues(operation, sourceID, StatusSuccess).Inc()
		m.lastSuccess.WithLabelValues(operation, sourceID).SetToCurrentTime()
	}
	m.runDuration.WithLabelValues(operation, sourceID).Observe(d.Seconds())
}

// RegisterDB exports the connection pool statistics of db under the given name
func (m *SyncMetrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry returns the underlying registry
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ appintegration.Metrics = (*SyncMetrics)(nil)
