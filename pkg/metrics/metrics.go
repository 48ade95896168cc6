// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// UpstreamRequestDuration tracks calls against the upstream chat backend.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream directory call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)

	// SessionsEnsuredTotal tracks EnsureSession outcomes.
	SessionsEnsuredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_ensured_total",
			Help: "Session bootstrap attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SessionSelfHealsTotal tracks stale-cache repairs during bootstrap.
	SessionSelfHealsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_self_heals_total",
			Help: "Times a stale local visitor identity was cleared and rebuilt",
		},
	)

	// SendsTotal tracks message sends by outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_sends_total",
			Help: "Message send attempts by outcome",
		},
		[]string{"outcome"},
	)

	// HistoryLoadsTotal tracks timeline history page loads.
	HistoryLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_loads_total",
			Help: "Timeline history page loads",
		},
		[]string{"kind", "status"},
	)

	// ActiveSessions tracks live widget sessions held by the gateway.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_sessions_active",
			Help: "Number of widget sessions held in the registry",
		},
	)

	// EventsPublishedTotal tracks events published to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Widget events published to the event stream",
		},
		[]string{"type"},
	)
)

// Send outcome labels.
const (
	SendSuccess   = "success"
	SendAIFailed  = "ai_failed"
	SendTransport = "transport_error"
	SendRejected  = "rejected"
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordUpstream records metrics for an upstream directory call.
func RecordUpstream(endpoint, status string, duration float64) {
	UpstreamRequestDuration.WithLabelValues(endpoint, status).Observe(duration)
}
