package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Outbound backend request rate. Watch for: error vs success ratio per route.
	BackendRequestsTotal *prometheus.CounterVec

	// Backend latency per request. Watch for: p95 growth (backend degradation).
	BackendRequestDuration *prometheus.HistogramVec

	// Responses served from the local response cache on HTTP 304.
	NotModifiedServedTotal prometheus.Counter

	// 304 responses with no cached entry for the key (first-request edge case).
	NotModifiedMissTotal prometheus.Counter

	// GET requests coalesced onto an identical in-flight request.
	CoalescedRequestsTotal prometheus.Counter

	// Auth-error signals detected (401 or marker match). Watch for: forced logouts.
	AuthErrorsTotal prometheus.Counter

	// Session state transitions by resulting state.
	SessionTransitionsTotal *prometheus.CounterVec

	// Aggregation sub-request failures by source (weather/forecast/attractions/news).
	AggregationFailuresTotal *prometheus.CounterVec

	// Aggregation commits dropped because a newer city was selected meanwhile.
	StaleCommitsDroppedTotal prometheus.Counter

	// Requests rejected fast by the open circuit breaker.
	BreakerOpenTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendRequestsTotal",
			Help: "Total number of backend API requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendRequestDurationSeconds",
			Help:    "Backend request latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
	NotModifiedServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notModifiedServedTotal",
			Help: "HTTP 304 responses resolved from the response cache",
		},
	)
	NotModifiedMissTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notModifiedMissTotal",
			Help: "HTTP 304 responses with no cached entry for the key",
		},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "GET requests served by an identical in-flight request",
		},
	)
	AuthErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authErrorsTotal",
			Help: "Auth-error signals detected on failed responses",
		},
	)
	SessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionTransitionsTotal",
			Help: "Session state transitions by resulting state",
		},
		[]string{"state"},
	)
	AggregationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregationFailuresTotal",
			Help: "Aggregation sub-request failures by source",
		},
		[]string{"source"},
	)
	StaleCommitsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleCommitsDroppedTotal",
			Help: "Aggregation results discarded because the selection changed",
		},
	)
	BreakerOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breakerOpenTotal",
			Help: "Requests rejected while the circuit breaker was open",
		},
	)

	registry.MustRegister(
		BackendRequestsTotal,
		BackendRequestDuration,
		NotModifiedServedTotal,
		NotModifiedMissTotal,
		CoalescedRequestsTotal,
		AuthErrorsTotal,
		SessionTransitionsTotal,
		AggregationFailuresTotal,
		StaleCommitsDroppedTotal,
		BreakerOpenTotal,
	)
}

// MetricsHandler returns the HTTP handler serving the private registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
