package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "securegpx"

// Metrics holds the Prometheus collectors of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Queue metrics
	TasksSubmittedTotal *prometheus.CounterVec
	TasksFailedTotal    *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge

	// Store metrics
	PointsTotal       prometheus.Gauge
	TracksTotal       prometheus.Gauge
	PointsAdmitted    prometheus.Counter
	PointsRejected    prometheus.Counter
	MovesTotal        prometheus.Counter
	StoreValid        prometheus.Gauge
	DecodeErrorsTotal prometheus.Counter

	// Chain metrics
	HashesGeneratedTotal prometheus.Counter
	ValidationsTotal     *prometheus.CounterVec
	ValidationDuration   prometheus.Histogram
	DigestErrorsTotal    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer, storeName string) *Metrics {
	labels := prometheus.Labels{"store": storeName}
	factory := promauto.With(reg)

	return &Metrics{
		TasksSubmittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "tasks_submitted_total",
			Help:        "Total number of tasks submitted to the mutation queue",
			ConstLabels: labels,
		}, []string{"action"}),
		TasksFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "tasks_failed_total",
			Help:        "Total number of tasks that returned an error or panicked",
			ConstLabels: labels,
		}, []string{"action"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "task_duration_seconds",
			Help:        "Task execution duration in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"action"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "depth",
			Help:        "Number of tasks waiting in the mutation queue",
			ConstLabels: labels,
		}),

		PointsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "points",
			Help:        "Number of points held by the store",
			ConstLabels: labels,
		}),
		TracksTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "tracks",
			Help:        "Number of tracks held by the store",
			ConstLabels: labels,
		}),
		PointsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "points_admitted_total",
			Help:        "Total number of points admitted by the admission policy",
			ConstLabels: labels,
		}),
		PointsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "points_rejected_total",
			Help:        "Total number of points dropped by the admission policy",
			ConstLabels: labels,
		}),
		MovesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "moves_total",
			Help:        "Total number of point runs moved between tracks",
			ConstLabels: labels,
		}),
		StoreValid: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "valid",
			Help:        "1 when the last validation succeeded, 0 otherwise",
			ConstLabels: labels,
		}),
		DecodeErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "store",
			Name:        "decode_errors_total",
			Help:        "Total number of GPX documents that failed to decode",
			ConstLabels: labels,
		}),

		HashesGeneratedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chain",
			Name:        "hashes_generated_total",
			Help:        "Total number of point hashes computed",
			ConstLabels: labels,
		}),
		ValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chain",
			Name:        "validations_total",
			Help:        "Total number of chain validations by result",
			ConstLabels: labels,
		}, []string{"result"}),
		ValidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "chain",
			Name:        "validation_duration_seconds",
			Help:        "Chain validation duration in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		DigestErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chain",
			Name:        "digest_errors_total",
			Help:        "Total number of hashes that could not be computed",
			ConstLabels: labels,
		}),
	}
}

// RecordTask records a finished queue task
func (m *Metrics) RecordTask(action string, duration float64, failed bool) {
	if m == nil {
		return
	}
	m.TaskDuration.WithLabelValues(action).Observe(duration)
	if failed {
		m.TasksFailedTotal.WithLabelValues(action).Inc()
	}
}

// RecordSubmit records a task entering the queue
func (m *Metrics) RecordSubmit(action string) {
	if m == nil {
		return
	}
	m.TasksSubmittedTotal.WithLabelValues(action).Inc()
}

// UpdateQueueDepth sets the current queue depth
func (m *Metrics) UpdateQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// UpdateStoreSize sets the point and track gauges
func (m *Metrics) UpdateStoreSize(points, tracks int) {
	if m == nil {
		return
	}
	m.PointsTotal.Set(float64(points))
	m.TracksTotal.Set(float64(tracks))
}

// RecordAdmission records the outcome of an admission decision
func (m *Metrics) RecordAdmission(admitted bool) {
	if m == nil {
		return
	}
	if admitted {
		m.PointsAdmitted.Inc()
	} else {
		m.PointsRejected.Inc()
	}
}

func (m *Metrics) RecordMove() {
	if m == nil {
		return
	}
	m.MovesTotal.Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrorsTotal.Inc()
}

func (m *Metrics) RecordHash() {
	if m == nil {
		return
	}
	m.HashesGeneratedTotal.Inc()
}

func (m *Metrics) RecordDigestError() {
	if m == nil {
		return
	}
	m.DigestErrorsTotal.Inc()
}

// RecordValidation records a chain validation and its result
func (m *Metrics) RecordValidation(valid bool, duration float64) {
	if m == nil {
		return
	}
	result := "invalid"
	value := 0.0
	if valid {
		result = "valid"
		value = 1
	}
	m.ValidationsTotal.WithLabelValues(result).Inc()
	m.ValidationDuration.Observe(duration)
	m.StoreValid.Set(value)
}
