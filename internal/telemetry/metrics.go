// Package telemetry provides application-level observability for the portfolio API.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PORTFOLIO_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Image upload counters, sizes and rejection reasons
//   - Storage cleanup failures
//   - Database connection attempts and pool gauge
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:id)
// rather than the raw request URL so arbitrary ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/doubleh-portfolio/portfolio-api/internal/safego"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Image pipeline metrics.
//
// ImageUploadsTotal counts stored images by owning resource (hero, partners,
// projects) and storage backend. ImageUploadBytes observes the stored size after
// any downscaling. ImageUploadRejectionsTotal counts multipart requests refused by
// the upload middleware, by reason (field, count, size, type, decode, form).
//
// StorageDeleteErrorsTotal counts failed best-effort removals of replaced or
// orphaned images. A steady increase usually means the backend credentials lost
// delete permission.
var (
	ImageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_uploads_total",
			Help: "Total number of images stored, by resource and storage backend.",
		},
		[]string{"resource", "backend"},
	)

	ImageUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_upload_bytes",
			Help:    "Size of stored images in bytes.",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		},
	)

	ImageUploadRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_upload_rejections_total",
			Help: "Total number of rejected image uploads, by reason.",
		},
		[]string{"reason"},
	)

	StorageDeleteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_delete_errors_total",
			Help: "Total number of failed image removals, by storage backend.",
		},
		[]string{"backend"},
	)
)

// Database metrics.
//
// DBConnectAttemptsTotal is labelled {result} with values "success" and
// "failure"; the connector is lazy, so a climbing failure count with a flat
// success count means the API is serving 503s on every data route.
//
// DBOpenConnections tracks the open connections of the pool and is sampled by
// StartDBStatsCollector rather than per request.
var (
	DBConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_connect_attempts_total",
			Help: "Total number of database connection attempts, by result.",
		},
		[]string{"result"},
	)

	DBOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_open_connections",
			Help: "Current number of open database connections in the pool.",
		},
	)
)

// StatsSource reports connection pool statistics. A source without an open pool
// returns zero stats.
type StatsSource interface {
	Stats() sql.DBStats
}

// StartDBStatsCollector samples src every interval and updates the
// DBOpenConnections gauge until ctx is cancelled.
func StartDBStatsCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				DBOpenConnections.Set(float64(src.Stats().OpenConnections))
			}
		}
	})
}
