// Package observability provides Prometheus metrics instrumentation for the
// bridge core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// SAMPLE DISPATCH METRICS
// =============================================================================

var (
	samplesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busbridge_samples_dispatched_total",
			Help: "Total inbound samples dispatched by RPC role",
		},
		[]string{"role"}, // data, service_request, service_reply, action_goal_request, ...
	)

	samplesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busbridge_samples_dropped_total",
			Help: "Total inbound samples dropped",
		},
		[]string{"reason"}, // missing_type, malformed_payload, orphaned_reply
	)
)

// =============================================================================
// RPC METRICS
// =============================================================================

var (
	requestsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busbridge_requests_issued_total",
			Help: "Total request identifiers minted",
		},
	)

	goalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busbridge_action_goals_total",
			Help: "Total action goal lifecycle transitions",
		},
		[]string{"event"}, // stored, result_cached, result_delivered, erased
	)

	publishDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "busbridge_publish_duration_seconds",
			Help:    "Publish latency in seconds, including reader waits",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"kind"}, // data, rpc
	)

	readerWaitTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busbridge_reader_wait_timeouts_total",
			Help: "Total bounded reader waits that timed out",
		},
	)
)

// =============================================================================
// DISCOVERY METRICS
// =============================================================================

var (
	discoveryCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busbridge_discovery_completions_total",
			Help: "Total fully assembled discoveries",
		},
		[]string{"kind"}, // service, action
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordSampleDispatched records an inbound sample routed to a callback.
func RecordSampleDispatched(role string) {
	samplesDispatchedTotal.WithLabelValues(role).Inc()
}

// RecordSampleDropped records an inbound sample dropped before dispatch.
func RecordSampleDropped(reason string) {
	samplesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordRequestIssued records a minted request identifier.
func RecordRequestIssued() {
	requestsIssuedTotal.Inc()
}

// RecordGoalEvent records an action correlation-table transition.
func RecordGoalEvent(event string) {
	goalsTotal.WithLabelValues(event).Inc()
}

// RecordPublish records publish latency.
func RecordPublish(kind string, durationMS int) {
	publishDurationSeconds.WithLabelValues(kind).Observe(float64(durationMS) / 1000.0)
}

// RecordReaderWaitTimeout records a timed-out bounded reader wait.
func RecordReaderWaitTimeout() {
	readerWaitTimeoutsTotal.Inc()
}

// RecordDiscoveryCompleted records a fully assembled discovery.
func RecordDiscoveryCompleted(kind string) {
	discoveryCompletionsTotal.WithLabelValues(kind).Inc()
}
