// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thaitable_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thaitable_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thaitable_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	orderNumberRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thaitable_order_number_retries_total",
			Help: "Order creations retried after an order number collision",
		},
	)

	authEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thaitable_auth_events_total",
			Help: "Authentication events by outcome",
		},
		[]string{"event", "status"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thaitable_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"path"},
	)
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	s := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, s).Inc()
	httpRequestDuration.WithLabelValues(method, path, s).Observe(elapsed.Seconds())
}

// RecordOrderOperation counts create / update_status / update_payment results.
func RecordOrderOperation(operation string, success bool) {
	orderOperations.WithLabelValues(operation, outcome(success)).Inc()
}

func RecordOrderNumberRetry() { orderNumberRetries.Inc() }

func RecordAuthEvent(event string, success bool) {
	authEvents.WithLabelValues(event, outcome(success)).Inc()
}

func RecordRateLimited(path string) { rateLimited.WithLabelValues(path).Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
