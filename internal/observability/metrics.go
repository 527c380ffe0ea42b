package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync engines.
type Metrics struct {
	SchedulerRunning prometheus.Gauge

	// Job runs.
	SyncRuns     *prometheus.CounterVec   // labels: job, status={success,error}
	SyncDuration *prometheus.HistogramVec // labels: job
	SyncItems    *prometheus.CounterVec   // labels: job, action={created,updated,completed,skipped,failed}

	// Alert ingestion.
	AlertsFetched     prometheus.Counter
	AlertsRejected    *prometheus.CounterVec // labels: reason
	LifecycleOutcomes *prometheus.CounterVec // labels: outcome
	ZoneCache         *prometheus.CounterVec // labels: result={hit,miss}

	// Confirmation.
	ReportsEvaluated prometheus.Counter
	EventsConfirmed  prometheus.Counter

	// Upstream HTTP and downstream publishing.
	UpstreamRequests *prometheus.CounterVec   // labels: upstream, outcome={success,error,retry,not_modified}
	UpstreamDuration *prometheus.HistogramVec // labels: upstream
	ChangesPublished *prometheus.CounterVec   // labels: entity, outcome={success,error}
}

// NewMetrics creates and registers all sync metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SchedulerRunning,
		m.SyncRuns,
		m.SyncDuration,
		m.SyncItems,
		m.AlertsFetched,
		m.AlertsRejected,
		m.LifecycleOutcomes,
		m.ZoneCache,
		m.ReportsEvaluated,
		m.EventsConfirmed,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.ChangesPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the job scheduler is active, 0 when shut down.",
		}),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync job runs by job and status.",
		}, []string{"job", "status"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete sync job run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
		SyncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Records touched by sync jobs, by job and action.",
		}, []string{"job", "action"}),
		AlertsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fetched_total",
			Help:      "Alert features received from the NWS feed.",
		}),
		AlertsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rejected_total",
			Help:      "Alert features dropped during normalization, by reason.",
		}, []string{"reason"}),
		LifecycleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_outcomes_total",
			Help:      "Event lifecycle classifications by outcome.",
		}, []string{"outcome"}),
		ZoneCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_cache_total",
			Help:      "Zone geometry cache lookups by result.",
		}, []string{"result"}),
		ReportsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_evaluated_total",
			Help:      "Field reports evaluated against event polygons.",
		}),
		EventsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_confirmed_total",
			Help:      "Events confirmed by a matching field report.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream feed requests by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"upstream"}),
		ChangesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_published_total",
			Help:      "Change notifications written to Kafka, by entity and outcome.",
		}, []string{"entity", "outcome"}),
	}
}
