package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the occupancy service.
type Metrics struct {
	// Ingestion metrics.
	ReadingsIngested *prometheus.CounterVec // labels: source={kafka,mqtt,http,seed}
	DecodeErrors     *prometheus.CounterVec // labels: source={kafka,mqtt}
	Submissions      *prometheus.CounterVec // labels: outcome={accepted,rejected,error}
	IngestRunning    *prometheus.GaugeVec   // labels: source={kafka,mqtt}

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Derivation metrics, refreshed on every recompute.
	Recomputes         prometheus.Counter
	RecomputeDuration  prometheus.Histogram
	SubscriptionErrors prometheus.Counter
	FeedRecords        prometheus.Gauge
	DroppedRecords     prometheus.Gauge
	UnknownFloor       prometheus.Gauge
	TotalOccupancy     prometheus.Gauge
	FloorOccupancy     *prometheus.GaugeVec // labels: floor
	FloorFillPercent   *prometheus.GaugeVec // labels: floor
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsIngested,
		m.DecodeErrors,
		m.Submissions,
		m.IngestRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Recomputes,
		m.RecomputeDuration,
		m.SubscriptionErrors,
		m.FeedRecords,
		m.DroppedRecords,
		m.UnknownFloor,
		m.TotalOccupancy,
		m.FloorOccupancy,
		m.FloorFillPercent,
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
		ReadingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occupancy",
			Name:      "readings_ingested_total",
			Help:      "Raw readings appended to the feed, by source.",
		}, []string{"source"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occupancy",
			Name:      "decode_errors_total",
			Help:      "Messages skipped because they were not a JSON reading object.",
		}, []string{"source"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occupancy",
			Name:      "submissions_total",
			Help:      "Manual reading submissions by outcome.",
		}, []string{"outcome"}),
		IngestRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "ingest_running",
			Help:      "1 when an ingestion source is active, 0 otherwise.",
		}, []string{"source"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "occupancy",
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "occupancy",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-decode-append cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occupancy",
			Name:      "recomputes_total",
			Help:      "Full recomputes of the occupancy view.",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "occupancy",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of one full recompute from feed state.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		SubscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occupancy",
			Name:      "subscription_errors_total",
			Help:      "Terminal errors reported by the feed subscription.",
		}),
		FeedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "feed_records",
			Help:      "Records currently held by the feed.",
		}),
		DroppedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "feed_malformed_records",
			Help:      "Feed records that failed validation in the latest recompute.",
		}),
		UnknownFloor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "feed_unknown_floor_records",
			Help:      "Valid readings naming an unconfigured floor in the latest recompute.",
		}),
		TotalOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "total_devices",
			Help:      "Sum of the latest device count of every floor.",
		}),
		FloorOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "floor_devices",
			Help:      "Latest device count per floor.",
		}, []string{"floor"}),
		FloorFillPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "occupancy",
			Name:      "floor_fill_percent",
			Help:      "Latest device count as a percentage of floor capacity, capped at 100.",
		}, []string{"floor"}),
	}
}
