package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/esignworks/signflow/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Signing API call rate per operation. Watch for: error vs success ratio.
	SignAPICallsTotal *prometheus.CounterVec

	// Signing API latency per operation. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	SignAPIDuration *prometheus.HistogramVec

	// Retry attempts for signing API calls. Watch for: high retries = unstable upstream.
	SignAPIRetriesTotal prometheus.Counter

	// Cache hits by cache type (login, template). Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Cache operation failures by operation and error type.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation and outcome.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Connect notification callbacks by envelope status.
	CallbacksReceivedTotal *prometheus.CounterVec

	// Connect callbacks rejected because the body did not parse.
	CallbackParseFailuresTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component (0=closed, 1=open, 2=half-open).
	circuitBreakerState *prometheus.GaugeVec

	// Circuit breaker state transitions per component.
	circuitBreakerTransitions *prometheus.CounterVec

	// Requests still draining during shutdown.
	shutdownInFlight prometheus.Gauge

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	SignAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signApiCallsTotal",
			Help: "Total number of signing API calls",
		},
		[]string{"operation", "status"},
	)
	SignAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signApiDurationSeconds",
			Help:    "Signing API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
	SignAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signApiRetriesTotal",
			Help: "Total number of retry attempts for signing API calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache operation failures",
		},
		[]string{"operation", "errorType"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"operation", "outcome"},
	)
	CallbacksReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectCallbacksTotal",
			Help: "Total number of Connect notification callbacks received",
		},
		[]string{"envelopeStatus"},
	)
	CallbackParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connectCallbackParseFailuresTotal",
			Help: "Total number of Connect callbacks whose body failed to parse",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)
	circuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	shutdownInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "Requests still in flight while the server drains during shutdown",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		SignAPICallsTotal, SignAPIDuration, SignAPIRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CallbacksReceivedTotal, CallbackParseFailuresTotal,
		RateLimitDeniedTotal,
		circuitBreakerState, circuitBreakerTransitions,
		shutdownInFlight,
	)
}

// RecordAPICall records one signing API call outcome with its latency.
func RecordAPICall(operation, status string, seconds float64) {
	SignAPICallsTotal.WithLabelValues(operation, status).Inc()
	SignAPIDuration.WithLabelValues(operation).Observe(seconds)
}

// SetCircuitBreakerStateGauge sets the state gauge for a component.
func SetCircuitBreakerStateGauge(component string, state float64) {
	circuitBreakerState.WithLabelValues(component).Set(state)
}

// RecordCircuitBreakerTransition records a state transition for a component.
func RecordCircuitBreakerTransition(component, from, to string) {
	circuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
}

// RecordShutdownInFlight sets the number of requests still draining.
func RecordShutdownInFlight(n int) {
	shutdownInFlight.Set(float64(n))
}

// RegisterRateLimitGauges registers sliding-window gauges for the rate-limited path.
// Call from main after config load. Uses the same window as the health tracker.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(health.DenialCount(window)) },
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
