// Package telemetry provides logging setup and Prometheus metrics for the portal.
//
// All metrics are registered against the default Prometheus registry and served by
// the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PORTAL_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use c.FullPath() (route template such as /admin/requests/:id/status)
// rather than the raw URL so request ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Workflow metrics.
var (
	// PermissionRequestsSubmittedTotal counts requests created by members.
	PermissionRequestsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "permission_requests_submitted_total",
			Help: "Total number of permission requests submitted.",
		},
	)

	// PermissionRequestTransitionsTotal counts committed status transitions by target status.
	// Repeated transitions to the same status are counted each time.
	PermissionRequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_request_transitions_total",
			Help: "Total number of permission request status transitions, by target status.",
		},
		[]string{"status"},
	)

	// AuditShipErrorsTotal counts entries an external audit shipper failed to deliver.
	// The audit_logs table is unaffected by these failures.
	AuditShipErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_errors_total",
			Help: "Total number of audit entries that failed to ship, by shipper type.",
		},
		[]string{"shipper"},
	)
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled every 30 s
// by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is
// cancelled or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
