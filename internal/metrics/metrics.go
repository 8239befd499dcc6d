// Package metrics holds the Prometheus collectors of the sync engine and KPI aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is registered on an injected registerer; construct one per process (or per test).
//
// Metrics:
//   - taskpulse_sync_runs_total{source_type,outcome}
//   - taskpulse_sync_tables_total{outcome}
//   - taskpulse_sync_pages_total{source_type}
//   - taskpulse_sync_page_retries_total{source_type}
//   - taskpulse_sync_records_upserted_total{source_type}
//   - taskpulse_sync_duration_seconds{source_type}
//   - taskpulse_kpi_computations_total
type Metrics struct {
	SyncRuns        *prometheus.CounterVec
	SyncTables      *prometheus.CounterVec
	Pages           *prometheus.CounterVec
	PageRetries     *prometheus.CounterVec
	RecordsUpserted *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	KPIComputations prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_sync_runs_total",
			Help: "Sync calls by source type and outcome",
		}, []string{"source_type", "outcome"}), // "ok", "partial", "error"
		SyncTables: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_sync_tables_total",
			Help: "Tables processed by outcome",
		}, []string{"outcome"}), // "ok", "skipped"
		Pages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_sync_pages_total",
			Help: "Vendor pages fetched",
		}, []string{"source_type"}),
		PageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_sync_page_retries_total",
			Help: "Retried vendor page fetches",
		}, []string{"source_type"}),
		RecordsUpserted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_sync_records_upserted_total",
			Help: "Canonical task records upserted",
		}, []string{"source_type"}),
		SyncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskpulse_sync_duration_seconds",
			Help:    "Duration of sync calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"source_type"}),
		KPIComputations: f.NewCounter(prometheus.CounterOpts{
			Name: "taskpulse_kpi_computations_total",
			Help: "Weekly KPI snapshots computed",
		}),
	}
}

// Reset zeroes all vector collectors. Plain counters cannot be reset and keep their value.
func (m *Metrics) Reset() {
	m.SyncRuns.Reset()
	m.SyncTables.Reset()
	m.Pages.Reset()
	m.PageRetries.Reset()
	m.RecordsUpserted.Reset()
	m.SyncDuration.Reset()
}
