// Package metrics provides Prometheus metrics for the market report engine.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Markdown proxy metrics
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_proxy_requests_total",
			Help: "Total number of outbound fetches by result",
		},
		[]string{"result"}, // "ok", "rate_limited", "http_error", "transport_error"
	)

	ProxyRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_proxy_retries_total",
			Help: "Fetch retries after HTTP 429",
		},
	)

	ProxyLimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_proxy_limiter_wait_seconds",
			Help:    "Time spent waiting for a slot in the request window",
			Buckets: []float64{0, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	ProxyWindowOccupancy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_proxy_window_occupancy",
			Help: "Requests issued within the trailing window",
		},
	)

	// Resolution metrics
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_resolutions_total",
			Help: "Catalog resolutions by marketplace and status",
		},
		[]string{"marketplace", "status"}, // status: "resolved", "ambiguous", "not_found"
	)

	RecordsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_records_extracted_total",
			Help: "Price records extracted by marketplace and parser",
		},
		[]string{"marketplace", "parser"},
	)

	DisambiguationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_disambiguations_total",
			Help: "Disambiguation outcomes",
		},
		[]string{"outcome"}, // "chosen", "declined", "timeout", "auto", "undeliverable", "aborted"
	)

	// FX metrics
	FXFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_fx_fallbacks_total",
			Help: "Reports generated with the fallback exchange rate",
		},
	)

	FXRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_fx_usd_jpy",
			Help: "Last USD to JPY rate used",
		},
	)

	// Identity analyzer metrics
	AnalyzerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_analyzer_errors_total",
			Help: "Identity analyzer errors by type",
		},
		[]string{"type"}, // "network", "read", "api", "parse", "empty"
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_runs_total",
			Help: "Report runs by outcome",
		},
		[]string{"outcome"}, // "done", "cancelled", "failed"
	)

	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_runs_in_flight",
			Help: "Report runs currently executing",
		},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_run_duration_seconds",
			Help:    "Time from identity to terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 240, 480},
		},
	)
)

// GinMiddleware records request count and latency per route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
