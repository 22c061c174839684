package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the limiter.
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."},
	)

	// SolveOutcomes counts solves by outcome: solved, infeasible, invalid, cached.
	SolveOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleetroute_solves_total", Help: "Solve requests by outcome."},
		[]string{"outcome"},
	)
	// SolveDuration records end-to-end engine time in seconds.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "fleetroute_solve_duration_seconds", Help: "Engine solve duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}},
		[]string{"stop_reason"},
	)
	// MovesApplied counts accepted local search moves per family.
	MovesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleetroute_moves_applied_total", Help: "Accepted improving moves by family."},
		[]string{"family"},
	)
	// InstanceNodes tracks instance sizes.
	InstanceNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "fleetroute_instance_nodes", Help: "Nodes per solved instance.", Buckets: prometheus.ExponentialBuckets(4, 2, 10)},
	)
	// CostImprovement is the fraction of construction cost removed by local search.
	CostImprovement = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "fleetroute_cost_improvement_ratio", Help: "Relative cost removed by local search.", Buckets: prometheus.LinearBuckets(0, 0.05, 11)},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers all collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
		Registry.MustRegister(SolveOutcomes, SolveDuration, MovesApplied, InstanceNodes, CostImprovement)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
