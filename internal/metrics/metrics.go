package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records result cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records result cache store attempts.
	CacheOperationStore CacheOperation = "store"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached document.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached document was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the result cache entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// PlannerOutcome captures the result of an upstream planner invocation.
type PlannerOutcome string

const (
	// PlannerSuccess indicates the planner returned a usable document.
	PlannerSuccess PlannerOutcome = "success"
	// PlannerFailure indicates the planner call failed or was rejected.
	PlannerFailure PlannerOutcome = "failure"
)

// Recorder publishes Prometheus metrics for proxy activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	plannerCalls   *prometheus.CounterVec
	plannerLatency *prometheus.HistogramVec

	rateLimited *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plangate",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Total proxy requests processed per route.",
	}, []string{"route", "outcome", "status_code", "from_cache"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plangate",
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed proxy requests.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"route", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plangate",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Result cache operations executed by the proxy.",
	}, []string{"route", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plangate",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for result cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"route", "operation", "result"})

	plannerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plangate",
		Subsystem: "planner",
		Name:      "requests_total",
		Help:      "Upstream planner invocations issued on cache misses.",
	}, []string{"route", "outcome"})

	plannerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plangate",
		Subsystem: "planner",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for upstream planner calls.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
	}, []string{"route", "outcome"})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plangate",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Requests rejected because the fixed-window limit was reached.",
	}, []string{"route"})

	reg.MustRegister(requests, requestLatency, cacheOperations, cacheLatency, plannerCalls, plannerLatency, rateLimited)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		requests:        requests,
		requestLatency:  requestLatency,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		plannerCalls:    plannerCalls,
		plannerLatency:  plannerLatency,
		rateLimited:     rateLimited,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the outcome and latency for a completed proxy request.
func (r *Recorder) ObserveRequest(route, outcome string, statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	routeLabel := normalizeLabel(route)
	outcomeLabel := normalizeLabel(outcome)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.requests.WithLabelValues(routeLabel, outcomeLabel, statusLabel, cacheLabel).Inc()
	r.requestLatency.WithLabelValues(routeLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(route string, result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(normalizeLabel(route), CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a cache store attempt.
func (r *Recorder) ObserveCacheStore(route string, result CacheStoreOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreError)
	}
	r.observeCache(normalizeLabel(route), CacheOperationStore, resultLabel, duration)
}

// ObservePlannerCall records an upstream planner invocation.
func (r *Recorder) ObservePlannerCall(route string, outcome PlannerOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := string(outcome)
	if outcomeLabel == "" {
		outcomeLabel = string(PlannerFailure)
	}
	routeLabel := normalizeLabel(route)
	r.plannerCalls.WithLabelValues(routeLabel, outcomeLabel).Inc()
	r.plannerLatency.WithLabelValues(routeLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveRateLimited counts a request rejected by the fixed-window limiter.
func (r *Recorder) ObserveRateLimited(route string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(normalizeLabel(route)).Inc()
}

func (r *Recorder) observeCache(route string, operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(route, opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(route, opLabel, resLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
