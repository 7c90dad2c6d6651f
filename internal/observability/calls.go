package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallMetrics exposes Prometheus collectors for calls made to the remote users API.
type CallMetrics struct {
	calls    *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCallMetrics registers the call collectors against registerer, or the default
// registerer when nil.
func NewCallMetrics(registerer prometheus.Registerer) *CallMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "userdesk_users_api_calls_total",
		Help: "Calls to the users API partitioned by operation and outcome.",
	}, []string{"operation", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "userdesk_users_api_failures_total",
		Help: "Failed calls to the users API.",
	}, []string{"operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "userdesk_users_api_call_duration_seconds",
		Help:    "Duration in seconds of calls to the users API.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	registerer.MustRegister(calls, failures, duration)
	return &CallMetrics{calls: calls, failures: failures, duration: duration}
}

// CallTracker instruments a single API call.
type CallTracker struct {
	metrics   *CallMetrics
	operation string
	start     time.Time
}

// Track starts a tracker for operation. A nil receiver yields a tracker that records
// nothing.
func (m *CallMetrics) Track(operation string) *CallTracker {
	return &CallTracker{metrics: m, operation: operation, start: time.Now()}
}

// End records outcome and duration and returns err untouched.
func (t *CallTracker) End(err error) error {
	if t == nil || t.metrics == nil || t.operation == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.operation).Inc()
	}
	t.metrics.calls.WithLabelValues(t.operation, status).Inc()
	t.metrics.duration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
	return err
}
