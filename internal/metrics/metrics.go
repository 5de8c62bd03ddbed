// Package metrics holds the Prometheus instrumentation of the exchange client.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups the client's Prometheus metrics.
type Collector struct {
	// Requests counts HTTP attempts by endpoint and status ("error" when no response).
	Requests *prometheus.CounterVec
	// RateLimitRetries counts 429 responses that were retried, by endpoint.
	RateLimitRetries *prometheus.CounterVec
	// SkippedRecords counts records dropped during normalization, by kind and reason.
	SkippedRecords *prometheus.CounterVec
	// PagesFetched counts history pages, by endpoint.
	PagesFetched *prometheus.CounterVec
	// OperationDuration observes facade operations, by operation and result.
	OperationDuration *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// metrics unregistered, which keeps independent clients from colliding.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemsync_http_requests_total",
				Help: "HTTP attempts against the venue by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RateLimitRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemsync_rate_limit_retries_total",
				Help: "Rate limited responses that were retried",
			},
			[]string{"endpoint"},
		),
		SkippedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemsync_skipped_records_total",
				Help: "Venue records dropped during normalization",
			},
			[]string{"kind", "reason"},
		),
		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemsync_pages_fetched_total",
				Help: "History pages fetched by endpoint",
			},
			[]string{"endpoint"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gemsync_operation_duration_seconds",
				Help:    "Duration of client operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			c.Requests,
			c.RateLimitRetries,
			c.SkippedRecords,
			c.PagesFetched,
			c.OperationDuration,
		)
	}
	return c
}

// ObserveRequest counts one HTTP attempt. A zero status means no response was received.
func (c *Collector) ObserveRequest(endpoint string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.Requests.WithLabelValues(endpoint, label).Inc()
}

// ObserveRetry counts one rate-limited retry.
func (c *Collector) ObserveRetry(endpoint string) {
	c.RateLimitRetries.WithLabelValues(endpoint).Inc()
}

// ObserveSkip counts one dropped record.
func (c *Collector) ObserveSkip(kind, reason string) {
	c.SkippedRecords.WithLabelValues(kind, reason).Inc()
}

// ObservePage counts one fetched history page.
func (c *Collector) ObservePage(endpoint string) {
	c.PagesFetched.WithLabelValues(endpoint).Inc()
}

// ObserveOperation records how long an operation took.
func (c *Collector) ObserveOperation(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.OperationDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
