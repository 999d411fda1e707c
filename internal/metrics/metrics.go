// Package metrics holds the Prometheus collectors for the data pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wxstation"

// Metrics groups every pipeline counter. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	cacheLookups  *prometheus.CounterVec
	networkCalls  *prometheus.CounterVec
	networkErrors *prometheus.CounterVec
	pages         *prometheus.CounterVec
	samplesStored *prometheus.CounterVec
	syncRuns      *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by table and outcome (hit, partial, miss, error, bypass).",
		}, []string{"table", "outcome"}),
		networkCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_fetches_total",
			Help:      "Network fetches by endpoint.",
		}, []string{"endpoint"}),
		networkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_errors_total",
			Help:      "Failed network fetches by endpoint.",
		}, []string{"endpoint"}),
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages read from paginated endpoints.",
		}, []string{"endpoint"}),
		samplesStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_stored_total",
			Help:      "Samples written to the cache by table.",
		}, []string{"table"}),
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Scheduled sync runs by status.",
		}, []string{"status"}),
	}
}

// CacheLookup records one cache lookup.
func (m *Metrics) CacheLookup(table, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(table, outcome).Inc()
}

// NetworkFetch records one network fetch and whether it failed.
func (m *Metrics) NetworkFetch(endpoint string, err error) {
	if m == nil {
		return
	}
	m.networkCalls.WithLabelValues(endpoint).Inc()
	if err != nil {
		m.networkErrors.WithLabelValues(endpoint).Inc()
	}
}

// Page records one page of a paginated endpoint.
func (m *Metrics) Page(endpoint string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(endpoint).Inc()
}

// Stored records samples written to a table.
func (m *Metrics) Stored(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samplesStored.WithLabelValues(table).Add(float64(n))
}

// SyncRun records a scheduled sync outcome.
func (m *Metrics) SyncRun(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.syncRuns.WithLabelValues(status).Inc()
}
