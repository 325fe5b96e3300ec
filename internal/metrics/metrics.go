// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated registry served on /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
	)

	// ScheduleRuns counts scheduling calls by outcome status.
	ScheduleRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "aps_schedule_runs_total", Help: "Scheduling runs by status."},
		[]string{"status"},
	)
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "aps_solve_duration_seconds", Help: "Search wall time in seconds.", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}},
		[]string{"status"},
	)
	SearchBranches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "aps_search_branches_total", Help: "Branching decisions taken by the search."},
	)
	SearchConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "aps_search_conflicts_total", Help: "Dead ends met by the search."},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "aps_cache_lookups_total", Help: "Result cache lookups by outcome."},
		[]string{"result"},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests, HTTPDuration, RateLimited,
			ScheduleRuns, SolveDuration, SearchBranches, SearchConflicts, CacheLookups,
			WebhookDeliveries, WebhookLatency,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveSchedule records one finished scheduling run.
func ObserveSchedule(status string, wallSeconds float64, branches, conflicts int64) {
	ScheduleRuns.WithLabelValues(status).Inc()
	SolveDuration.WithLabelValues(status).Observe(wallSeconds)
	SearchBranches.Add(float64(branches))
	SearchConflicts.Add(float64(conflicts))
}
