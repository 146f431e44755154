package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the per-tenant limiter
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
		[]string{"tenant"},
	)

	// Solves counts finished solves by outcome: completed, partial, failed
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vrp_solves_total", Help: "Solve runs by outcome."},
		[]string{"outcome"},
	)
	// SolveDuration records stage durations in seconds: matrix, construct, improve
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "vrp_solve_stage_seconds", Help: "Solver stage duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5, 10}},
		[]string{"stage"},
	)
	// ImproverPasses observes neighbourhood passes per improve run
	ImproverPasses = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "vrp_improver_passes", Help: "Local search passes per solve.", Buckets: prometheus.ExponentialBuckets(1, 2, 14)},
	)
	// MovesApplied counts applied local search moves by kind
	MovesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vrp_moves_applied_total", Help: "Applied local search moves by kind."},
		[]string{"move"},
	)
	// TerminalStates counts improver terminal states
	TerminalStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vrp_improver_terminal_total", Help: "Improver terminal states."},
		[]string{"state"},
	)
	// RouteDistance observes the total distance of each solution
	RouteDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "vrp_solution_distance", Help: "Total distance of solved instances.", Buckets: prometheus.ExponentialBuckets(10, 4, 10)},
	)
	// MatrixCache counts distance matrix cache lookups by result: hit, miss
	MatrixCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vrp_matrix_cache_total", Help: "Distance matrix cache lookups."},
		[]string{"result"},
	)

	// CallbackDeliveries counts completion callback outcomes by event type and status
	CallbackDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_deliveries_total", Help: "Callback deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// CallbackLatency tracks callback delivery latencies in milliseconds
	CallbackLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "callback_delivery_latency_ms", Help: "Callback delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RateLimited)
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(ImproverPasses)
		Registry.MustRegister(MovesApplied)
		Registry.MustRegister(TerminalStates)
		Registry.MustRegister(RouteDistance)
		Registry.MustRegister(MatrixCache)
		Registry.MustRegister(CallbackDeliveries)
		Registry.MustRegister(CallbackLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
