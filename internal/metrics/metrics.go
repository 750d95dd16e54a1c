package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitescan",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitescan",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ScansTotal counts finished scans by classification and outcome.
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitescan",
			Name:      "scans_total",
			Help:      "Total number of scan requests by classification and result",
		},
		[]string{"classification", "result"},
	)

	// ClassifierFallbackTotal counts classifications replaced by the fallback label.
	ClassifierFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitescan",
			Name:      "classifier_fallback_total",
			Help:      "Classifier calls that failed and were replaced by the fallback label",
		},
	)

	// ExternalCallsTotal counts model and search calls by target and status.
	ExternalCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitescan",
			Name:      "external_calls_total",
			Help:      "Outbound model and search calls",
		},
		[]string{"target", "status"},
	)

	// ExternalCallDuration observes outbound call latency.
	ExternalCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitescan",
			Name:      "external_call_duration_seconds",
			Help:      "Outbound model and search call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 100},
		},
		[]string{"target"},
	)

	// SearchCacheTotal counts search cache hits and misses.
	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitescan",
			Name:      "search_cache_total",
			Help:      "Search result cache hits and misses",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		ScansTotal,
		ClassifierFallbackTotal,
		ExternalCallsTotal,
		ExternalCallDuration,
		SearchCacheTotal,
	)
}

// ObserveCall records one outbound call.
func ObserveCall(target string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExternalCallsTotal.WithLabelValues(target, status).Inc()
	ExternalCallDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
}

// Middleware records HTTP request duration and count.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
