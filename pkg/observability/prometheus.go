// Package observability provides Prometheus metrics for the block CSI controller.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
)

const (
	// namespace is the Prometheus metric namespace prefix for all block CSI metrics.
	namespace = "block_csi"
)

// Metrics holds all Prometheus metrics for the block CSI controller.
type Metrics struct {
	registry *prometheus.Registry

	// Volume operation metrics
	volumeOpsTotal    *prometheus.CounterVec
	volumeOpsDuration *prometheus.HistogramVec

	// LUN allocation metrics
	lunAllocationAttempts *prometheus.CounterVec

	// Array session metrics
	mediatorAcquisitions   *prometheus.CounterVec
	mediatorSessionsActive prometheus.Gauge
	breakerState           *prometheus.GaugeVec

	// Kubernetes events metrics
	eventsPostedTotal *prometheus.CounterVec
}

// breakerStateValues maps gobreaker state names to gauge values
var breakerStateValues = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// NewMetrics creates a new Metrics instance with all metrics registered.
// Uses a custom registry to avoid panics on driver restart (not DefaultRegistry).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		volumeOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "volume_operations_total",
				Help:      "Total number of volume operations by type and gRPC status code",
			},
			[]string{"operation", "code"},
		),

		volumeOpsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "volume_operation_duration_seconds",
				Help:      "Duration of volume operations in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		lunAllocationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lun_allocation_attempts_total",
				Help:      "Total number of map attempts by array type and result (mapped, collision, failed, exhausted)",
			},
			[]string{"array_type", "result"},
		),

		mediatorAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mediator_acquisitions_total",
				Help:      "Total number of array session attempts by array type and result",
			},
			[]string{"array_type", "result"},
		),

		mediatorSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mediator_sessions_active",
			Help:      "Number of currently open array sessions",
		}),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per array endpoint (0=closed, 1=half-open, 2=open)",
			},
			[]string{"endpoint"},
		),

		eventsPostedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_posted_total",
				Help:      "Total number of Kubernetes events posted by reason",
			},
			[]string{"reason"},
		),
	}

	// Register all metrics with the custom registry
	reg.MustRegister(
		m.volumeOpsTotal,
		m.volumeOpsDuration,
		m.lunAllocationAttempts,
		m.mediatorAcquisitions,
		m.mediatorSessionsActive,
		m.breakerState,
		m.eventsPostedTotal,
		newSecurityCollector(security.GetMetrics()),
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
// Use promhttp.HandlerFor with the custom registry for proper isolation.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordVolumeOp records a volume operation with timing.
// operation should be one of: publish, unpublish. code is the gRPC status code name.
func (m *Metrics) RecordVolumeOp(operation, code string, duration time.Duration) {
	m.volumeOpsTotal.WithLabelValues(operation, code).Inc()
	m.volumeOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLUNAllocation records the outcome of one MapVolume attempt
func (m *Metrics) RecordLUNAllocation(arrayType, result string) {
	m.lunAllocationAttempts.WithLabelValues(arrayType, result).Inc()
}

// RecordMediatorAcquire records an array session attempt.
// On success, also increments active sessions.
func (m *Metrics) RecordMediatorAcquire(arrayType string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.mediatorAcquisitions.WithLabelValues(arrayType, result).Inc()
	if err == nil {
		m.mediatorSessionsActive.Inc()
	}
}

// RecordMediatorRelease decrements the active sessions gauge
func (m *Metrics) RecordMediatorRelease() {
	m.mediatorSessionsActive.Dec()
}

// RecordBreakerState records the breaker state of an endpoint by gobreaker state name
func (m *Metrics) RecordBreakerState(endpoint, state string) {
	m.breakerState.WithLabelValues(endpoint).Set(breakerStateValues[state])
}

// RecordEventPosted records that a Kubernetes event was posted.
// reason should match the event reason constants (e.g., VolumeAttached, AttachFailed).
func (m *Metrics) RecordEventPosted(reason string) {
	m.eventsPostedTotal.WithLabelValues(reason).Inc()
}
