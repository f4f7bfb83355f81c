package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/climate-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Climate API call rate per endpoint. Watch for: error vs success ratio.
	ClimateAPICallsTotal *prometheus.CounterVec

	// Climate API latency per endpoint. Watch for: p95 > 2s (upstream degradation).
	ClimateAPIDuration *prometheus.HistogramVec

	// Retry attempts for climate API calls. Watch for: high retries = unstable upstream.
	ClimateAPIRetriesTotal prometheus.Counter

	// Climate API failures by category (timeout, upstream_5xx, schema_mismatch, ...).
	ClimateAPIErrorsTotal *prometheus.CounterVec

	// Upstream fetches served by joining an identical in-flight fetch.
	FetchCoalescedTotal *prometheus.CounterVec

	// Dashboard session loads by result (ready, error).
	DashboardLoadsTotal *prometheus.CounterVec

	// Dashboard load latency, all three fetches plus initial rendering.
	DashboardLoadDuration prometheus.Histogram

	// Custom range changes by result (applied, rejected, superseded).
	RangeChangesTotal *prometheus.CounterVec

	// Charts rendered per kind (annual, decadal, custom).
	ChartRendersTotal *prometheus.CounterVec

	// Chart handles created and not yet released. Watch for: monotonic growth = leaked charts.
	ChartInstancesLive prometheus.Gauge

	// Render cache lookups by result (hit, miss, error).
	RenderCacheLookupsTotal *prometheus.CounterVec

	// Live dashboard sessions held by the registry.
	SessionsActive prometheus.Gauge

	// Sessions evicted by the sweeper or capacity limit.
	SessionsEvictedTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// In-flight requests at the moment shutdown began.
	ShutdownInFlight prometheus.Gauge

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
	ClimateAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climateApiCallsTotal",
			Help: "Total number of climate API calls",
		},
		[]string{"endpoint", "status"},
	)
	ClimateAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "climateApiDurationSeconds",
			Help:    "Climate API latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ClimateAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "climateApiRetriesTotal",
			Help: "Total number of retry attempts for climate API calls",
		},
	)
	ClimateAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climateApiErrorsTotal",
			Help: "Climate API failures by error category",
		},
		[]string{"category"},
	)
	FetchCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchCoalescedTotal",
			Help: "Climate API fetches satisfied by an identical in-flight fetch",
		},
		[]string{"endpoint"},
	)
	DashboardLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboardLoadsTotal",
			Help: "Dashboard session loads by result",
		},
		[]string{"result"},
	)
	DashboardLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboardLoadDurationSeconds",
			Help:    "Time from session creation to Ready or Error",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	RangeChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangeChangesTotal",
			Help: "Custom range changes by result",
		},
		[]string{"result"},
	)
	ChartRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartRendersTotal",
			Help: "Charts rendered by kind",
		},
		[]string{"kind"},
	)
	ChartInstancesLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chartInstancesLive",
			Help: "Chart handles created and not yet released",
		},
	)
	RenderCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderCacheLookupsTotal",
			Help: "Render cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionsActive",
			Help: "Dashboard sessions currently held in memory",
		},
	)
	SessionsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionsEvictedTotal",
			Help: "Dashboard sessions evicted by reason (expired, capacity, shutdown)",
		},
		[]string{"reason"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	ShutdownInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests when graceful shutdown started",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ClimateAPICallsTotal, ClimateAPIDuration, ClimateAPIRetriesTotal, ClimateAPIErrorsTotal,
		FetchCoalescedTotal,
		DashboardLoadsTotal, DashboardLoadDuration, RangeChangesTotal,
		ChartRendersTotal, ChartInstancesLive, RenderCacheLookupsTotal,
		SessionsActive, SessionsEvictedTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		ShutdownInFlight,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition counts a breaker transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// RecordShutdownInFlight records the in-flight request count at shutdown.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlight.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
