package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alert_monitor"

// Metrics holds the Prometheus collectors for detection, scheduling and ingestion.
type Metrics struct {
	// Detection pass metrics.
	PassesTotal        *prometheus.CounterVec // labels: outcome={success,failed,panic}
	PassesSkipped      *prometheus.CounterVec // labels: reason={overlap,lock_held,lock_error}
	PassDuration       prometheus.Histogram
	ReadingsEvaluated  prometheus.Counter
	AlertsCreated      *prometheus.CounterVec // labels: parameter, severity
	AlertsDeduplicated *prometheus.CounterVec // labels: parameter
	PersistenceErrors  *prometheus.CounterVec // labels: operation={find,create}
	PublishErrors      prometheus.Counter
	SchedulerRunning   prometheus.Gauge

	// Ingestion metrics.
	ReadingsIngested prometheus.Counter
	IngestErrors     prometheus.Counter
	IngestBatchSize  prometheus.Histogram
	IngestRunning    prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_passes_total",
			Help:      help("Detection passes by outcome."),
		}, []string{"outcome"}),
		PassesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_passes_skipped_total",
			Help:      help("Scheduler ticks that did not start a pass, by reason."),
		}, []string{"reason"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_pass_duration_seconds",
			Help:      help("Duration of a complete detection pass."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ReadingsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_evaluated_total",
			Help:      help("Readings fetched and classified by detection passes."),
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      help("Active alerts created, by parameter and severity."),
		}, []string{"parameter", "severity"}),
		AlertsDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_deduplicated_total",
			Help:      help("Threshold crossings suppressed by an existing active alert."),
		}, []string{"parameter"}),
		PersistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      help("Alert store failures by operation."),
		}, []string{"operation"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      help("Failures publishing created alerts."),
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      help("1 when the detection scheduler is running, 0 otherwise."),
		}),
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      help("Readings decoded and stored by the ingestion paths."),
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_decode_errors_total",
			Help:      help("Reading messages that failed to decode."),
		}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_size",
			Help:      help("Number of reading messages per ingestion batch."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      help("1 when the Kafka ingestion pipeline is active, 0 when shut down."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Reverse geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Reverse geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.PassesTotal,
		m.PassesSkipped,
		m.PassDuration,
		m.ReadingsEvaluated,
		m.AlertsCreated,
		m.AlertsDeduplicated,
		m.PersistenceErrors,
		m.PublishErrors,
		m.SchedulerRunning,
		m.ReadingsIngested,
		m.IngestErrors,
		m.IngestBatchSize,
		m.IngestRunning,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
