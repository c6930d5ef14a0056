package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
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

	// ProviderCalls counts geocoding/routing provider calls by operation and outcome.
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geo_provider_calls_total", Help: "Geo provider calls by operation and outcome."},
		[]string{"op", "status"},
	)
	// SolveDuration records end-to-end solver wall time in seconds.
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_duration_seconds", Help: "Route solver wall time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}},
	)
	// SolveIterations records local-search iterations per solve.
	SolveIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_iterations", Help: "Local-search iterations per solve.", Buckets: []float64{10, 100, 1000, 10000, 100000}},
	)
	// TasksDropped counts tasks left unassigned by batch solves.
	TasksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solver_tasks_dropped_total", Help: "Tasks left unassigned by batch solves."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ProviderCalls)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SolveIterations)
		Registry.MustRegister(TasksDropped)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
