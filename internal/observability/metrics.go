package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest runner and its stateful components.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // labels: outcome={success,failure}
	RunDuration prometheus.Histogram
	RunActive   prometheus.Gauge

	ObservationsForwarded prometheus.Counter
	ObservationsDeduped   prometheus.Counter
	SeenSetSize           prometheus.Gauge
	SeenSetTrimmed        prometheus.Counter

	RawCacheWrites *prometheus.CounterVec // labels: mode={merge,simple}, outcome={success,failure}

	StationsReconciled prometheus.Counter
	StationsSkipped    *prometheus.CounterVec // labels: reason
	ValidationMessages *prometheus.CounterVec // labels: category
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunActive,
		m.ObservationsForwarded,
		m.ObservationsDeduped,
		m.SeenSetSize,
		m.SeenSetTrimmed,
		m.RawCacheWrites,
		m.StationsReconciled,
		m.StationsSkipped,
		m.ValidationMessages,
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
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "runs_total",
			Help:      "Completed invocations by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station_ingest",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full load-transform-persist run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_ingest",
			Name:      "run_active",
			Help:      "1 while a run is in flight, 0 between runs.",
		}),
		ObservationsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "observations_forwarded_total",
			Help:      "Observations handed to the downstream sender.",
		}),
		ObservationsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "observations_deduplicated_total",
			Help:      "Observations dropped because their fingerprint was already seen.",
		}),
		SeenSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_ingest",
			Name:      "seen_set_size",
			Help:      "Fingerprints in the seen set after the latest trim.",
		}),
		SeenSetTrimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "seen_set_trimmed_total",
			Help:      "Fingerprints dropped by retention trimming.",
		}),
		RawCacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "raw_cache_writes_total",
			Help:      "Raw cache store attempts by mode and outcome.",
		}, []string{"mode", "outcome"}),
		StationsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "stations_reconciled_total",
			Help:      "Station records accepted into a metadata payload.",
		}),
		StationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "stations_skipped_total",
			Help:      "Station records skipped during reconciliation, by reason.",
		}, []string{"reason"}),
		ValidationMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_ingest",
			Name:      "validation_messages_total",
			Help:      "Observation validation findings by category.",
		}, []string{"category"}),
	}
}
