package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamstat_observations_total",
			Help: "Total number of observations processed",
		},
		[]string{"source"},
	)

	InvalidObservationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamstat_invalid_observations_total",
			Help: "Total number of observations rejected as invalid",
		},
	)

	DroppedObservationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamstat_dropped_observations_total",
			Help: "Total number of observations dropped on a full channel",
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamstat_anomalies_total",
			Help: "Total number of anomalies flagged",
		},
		[]string{"entity_id", "metric"},
	)

	TrackedKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamstat_tracked_keys",
			Help: "Number of (entity, metric) keys with a live window",
		},
	)

	EvictedKeysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamstat_evicted_keys_total",
			Help: "Total number of windows evicted by the tracked-key bound",
		},
	)

	RecordLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamstat_record_latency_seconds",
			Help:    "Latency of one record-and-publish cycle",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	RollingAverage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamstat_rolling_average",
			Help: "Current rolling average per key",
		},
		[]string{"entity_id", "metric"},
	)

	RollingStdDev = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamstat_rolling_stddev",
			Help: "Current rolling standard deviation per key",
		},
		[]string{"entity_id", "metric"},
	)
)
