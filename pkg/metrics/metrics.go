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
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnDuration tracks full chat-turn duration, from user message
	// append to assistant message finalization.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// StreamDeltasTotal tracks text deltas folded by the reconciler.
	StreamDeltasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_deltas_total",
			Help: "Total stream deltas processed",
		},
		[]string{"model"},
	)

	// MessagesTotal tracks total messages committed to the store.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages stored",
		},
		[]string{"role"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// SessionRebuildsTotal tracks session context rebuilds.
	SessionRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_rebuilds_total",
			Help: "Total session context rebuilds",
		},
	)

	// TitleJobsTotal tracks title generation jobs by outcome.
	TitleJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "title_jobs_total",
			Help: "Total title generation jobs",
		},
		[]string{"outcome"},
	)

	// PersistErrorsTotal tracks swallowed persistence errors.
	PersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persist_errors_total",
			Help: "Total persistence errors (logged and swallowed)",
		},
	)

	// StreamConnectionsActive tracks active streaming responses.
	StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connections_active",
			Help: "Number of active streaming connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records metrics for a completed chat turn.
func RecordTurn(model, status string, duration float64) {
	TurnDuration.WithLabelValues(model, status).Observe(duration)
}

// IncrementStreamConnections increments the active stream count.
func IncrementStreamConnections() {
	StreamConnectionsActive.Inc()
}

// DecrementStreamConnections decrements the active stream count.
func DecrementStreamConnections() {
	StreamConnectionsActive.Dec()
}
