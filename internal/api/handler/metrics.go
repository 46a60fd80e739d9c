package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	zakatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zakat_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	zakatRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zakat_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	zakatDonationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zakat_donations_total",
		Help: "Total donations recorded by category and risk flag.",
	}, []string{"category", "flagged"})

	zakatLedgerChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zakat_ledger_checks_total",
		Help: "Total ledger integrity checks by result.",
	}, []string{"result"})

	zakatLedgerValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zakat_ledger_valid",
		Help: "1 if the last integrity check found the ledger intact, 0 otherwise.",
	})

	zakatLedgerLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zakat_ledger_length",
		Help: "Number of blocks seen by the last integrity check.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		zakatRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		zakatRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordDonation records a committed donation. Its signature matches
// donation.MetricsRecorder.
func RecordDonation(category string, flagged bool) {
	zakatDonationsTotal.WithLabelValues(category, strconv.FormatBool(flagged)).Inc()
}

// RecordLedgerCheck records the outcome of an integrity check. Its signature
// matches audit.MetricsRecordFunc.
func RecordLedgerCheck(valid bool, length int) {
	if valid {
		zakatLedgerChecksTotal.WithLabelValues("valid").Inc()
		zakatLedgerValid.Set(1)
	} else {
		zakatLedgerChecksTotal.WithLabelValues("invalid").Inc()
		zakatLedgerValid.Set(0)
	}
	zakatLedgerLength.Set(float64(length))
}
