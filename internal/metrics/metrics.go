package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beststop/parking-server/pkg/types"
)

// Failure stages reported by the cycler.
const (
	StageFrame   = "frame"
	StageDetect  = "detect"
	StagePublish = "publish"
)

// Metrics holds all application metrics
type Metrics struct {
	// Cycle counters
	CyclesTotal    atomic.Uint64
	CyclesFailed   atomic.Uint64
	DetectionsSeen atomic.Uint64

	// Push endpoint counters
	PushAccepted atomic.Uint64
	PushRejected atomic.Uint64

	// Latest published tally
	total       atomic.Int64
	free        atomic.Int64
	occupied    atomic.Int64
	unknown     atomic.Int64
	lastPublish atomic.Int64 // unix seconds

	failures      *prometheus.CounterVec
	detectLatency prometheus.Histogram
	cycleLatency  prometheus.Histogram

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "beststop_cycles_total",
			Help: "Total aggregation cycles run",
		},
		func() float64 { return float64(m.CyclesTotal.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "beststop_cycles_failed_total",
			Help: "Aggregation cycles that published a zeroed result",
		},
		func() float64 { return float64(m.CyclesFailed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "beststop_detections_total",
			Help: "Total detections returned by the detector",
		},
		func() float64 { return float64(m.DetectionsSeen.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "beststop_push_accepted_total",
			Help: "Accepted POST /atualizar_vagas requests",
		},
		func() float64 { return float64(m.PushAccepted.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "beststop_push_rejected_total",
			Help: "Rejected POST /atualizar_vagas requests",
		},
		func() float64 { return float64(m.PushRejected.Load()) },
	))

	// Latest tally
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "beststop_spots_total",
			Help: "Spots counted in the latest result",
		},
		func() float64 { return float64(m.total.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "beststop_spots_free",
			Help: "Free spots in the latest result",
		},
		func() float64 { return float64(m.free.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "beststop_spots_occupied",
			Help: "Occupied spots in the latest result",
		},
		func() float64 { return float64(m.occupied.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "beststop_detections_unknown",
			Help: "Detections of unrecognised class in the latest result",
		},
		func() float64 { return float64(m.unknown.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "beststop_last_publish_timestamp_seconds",
			Help: "Unix time of the latest published result",
		},
		func() float64 { return float64(m.lastPublish.Load()) },
	))

	m.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beststop_cycle_failures_total",
			Help: "Cycle failures by stage",
		},
		[]string{"stage"},
	)
	m.registry.MustRegister(m.failures)

	m.detectLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "beststop_detect_duration_seconds",
		Help:    "Detector call latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	m.registry.MustRegister(m.detectLatency)

	m.cycleLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "beststop_cycle_duration_seconds",
		Help:    "Full cycle latency from frame acquisition to publish",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	m.registry.MustRegister(m.cycleLatency)
}

// RecordFailure counts a failed cycle at the given stage.
func (m *Metrics) RecordFailure(stage string) {
	m.CyclesFailed.Add(1)
	m.failures.WithLabelValues(stage).Inc()
}

// ObserveDetect records one detector call.
func (m *Metrics) ObserveDetect(d time.Duration, detections int) {
	m.detectLatency.Observe(d.Seconds())
	m.DetectionsSeen.Add(uint64(detections))
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	m.CyclesTotal.Add(1)
	m.cycleLatency.Observe(d.Seconds())
}

// UpdateResult mirrors the latest published result into the gauges.
func (m *Metrics) UpdateResult(r types.AggregateResult) {
	m.total.Store(int64(r.Total))
	m.free.Store(int64(r.FreeCount))
	m.occupied.Store(int64(r.OccupiedCount))
	m.unknown.Store(int64(r.UnknownCount))
	if !r.Timestamp.IsZero() {
		m.lastPublish.Store(r.Timestamp.Unix())
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
