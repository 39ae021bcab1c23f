package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// acquisition and reconciliation pipeline.
type Metrics struct {
	// Bulk archive cache metrics.
	CacheLookups    *prometheus.CounterVec // labels: result={fresh,stale,last_resort,miss}
	CacheDownloads  *prometheus.CounterVec // labels: outcome={success,fallback,error}
	CacheFilesBytes prometheus.Gauge

	// Source fetch metrics.
	SourceEvents   *prometheus.CounterVec   // labels: source={archive,spc,alerts,cdo}
	SourceFailures *prometheus.CounterVec   // labels: source={archive,spc,alerts,cdo}
	SourceDuration *prometheus.HistogramVec // labels: source

	// Reconciliation metrics.
	QueriesTotal       prometheus.Counter
	QueryDuration      prometheus.Histogram
	EventsConsolidated prometheus.Counter

	// Rate limiter metrics.
	LimiterWaits     prometheus.Histogram
	LimiterQuotaHits prometheus.Counter

	// Background refresher metrics.
	RefreshRuns *prometheus.CounterVec // labels: job={warm,cleanup}, outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.CacheDownloads,
		m.CacheFilesBytes,
		m.SourceEvents,
		m.SourceFailures,
		m.SourceDuration,
		m.QueriesTotal,
		m.QueryDuration,
		m.EventsConsolidated,
		m.LimiterWaits,
		m.LimiterQuotaHits,
		m.RefreshRuns,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "cache_lookups_total",
			Help:      "Bulk archive cache lookups by result tier.",
		}, []string{"result"}),
		CacheDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "cache_downloads_total",
			Help:      "Bulk archive download attempts by outcome.",
		}, []string{"outcome"}),
		CacheFilesBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_reports",
			Name:      "cache_files_bytes",
			Help:      "Total size of cached bulk archive files.",
		}),
		SourceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "source_events_total",
			Help:      "Events contributed by each data source.",
		}, []string{"source"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "source_failures_total",
			Help:      "Source fetches that degraded to an empty contribution.",
		}, []string{"source"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_reports",
			Name:      "source_fetch_duration_seconds",
			Help:      "Per-source fetch duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		QueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "queries_total",
			Help:      "Reconciliation queries served.",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_reports",
			Name:      "query_duration_seconds",
			Help:      "End-to-end reconciliation query duration.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		EventsConsolidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "events_consolidated_total",
			Help:      "Raw events merged away by same-day consolidation.",
		}),
		LimiterWaits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_reports",
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting for a rate limiter token.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LimiterQuotaHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "limiter_quota_exhausted_total",
			Help:      "Requests rejected because the daily quota was spent.",
		}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_reports",
			Name:      "refresh_runs_total",
			Help:      "Background refresher job runs by job and outcome.",
		}, []string{"job", "outcome"}),
	}
}
