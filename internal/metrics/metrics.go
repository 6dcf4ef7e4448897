// Package metrics defines the Prometheus collectors for the indexing
// and search paths and exposes a scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Each instance owns its
// registry so tests can create them freely.
type Metrics struct {
	registry *prometheus.Registry

	DocsIndexedTotal   prometheus.Counter
	DocsRemovedTotal   prometheus.Counter
	IndexFailuresTotal prometheus.Counter
	DocumentsGauge     prometheus.Gauge
	SearchLatency      *prometheus.HistogramVec
	SearchQueriesTotal *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	RebuildsTotal      *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocsIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "othala_docs_indexed_total",
			Help: "Total documents indexed (created or reindexed).",
		}),
		DocsRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "othala_docs_removed_total",
			Help: "Total documents removed from the index.",
		}),
		IndexFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "othala_index_failures_total",
			Help: "Per-document indexing failures (read or parse).",
		}),
		DocumentsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "othala_documents",
			Help: "Number of live documents in the index.",
		}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "othala_search_latency_seconds",
			Help:    "Search latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"cache_status"}),
		SearchQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "othala_search_queries_total",
			Help: "Total search queries by outcome (ok, zero_result, error).",
		}, []string{"outcome"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "othala_cache_hits_total",
			Help: "Result cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "othala_cache_misses_total",
			Help: "Result cache misses.",
		}),
		CacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "othala_cache_evictions_total",
			Help: "Result cache evictions under the memory budget.",
		}),
		RebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "othala_rebuilds_total",
			Help: "Full index rebuilds by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.DocsIndexedTotal,
		m.DocsRemovedTotal,
		m.IndexFailuresTotal,
		m.DocumentsGauge,
		m.SearchLatency,
		m.SearchQueriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.RebuildsTotal,
	)
	return m
}

// Handler returns the scrape handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
