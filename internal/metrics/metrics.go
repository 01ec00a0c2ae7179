// Package metrics defines the prometheus metric vectors for the scan
// aggregation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	// ScansTotal tracks scans by terminal state.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Total number of scans by terminal state",
		},
		[]string{"workspace_id", "status"},
	)

	// ScanDuration tracks end-to-end scan duration.
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Scan duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workspace_id"},
	)

	// ScansInProgress tracks currently running scans.
	ScansInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scans_in_progress",
			Help: "Number of scans currently in progress",
		},
		[]string{"workspace_id"},
	)
)

// Provider metrics
var (
	// ProviderCallsTotal tracks provider calls by outcome status.
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Total number of provider calls by status",
		},
		[]string{"provider", "status"},
	)

	// ProviderCallDuration tracks provider call latency.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	// FindingsTotal tracks normalized findings by provider and kind.
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_total",
			Help: "Total number of normalized findings by provider and kind",
		},
		[]string{"provider", "kind"},
	)
)

// Budget metrics
var (
	// BudgetDenialsTotal tracks provider calls denied by the budget guard.
	BudgetDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_denials_total",
			Help: "Total number of provider calls denied by the budget guard",
		},
		[]string{"workspace_id", "provider", "reason"},
	)

	// BudgetAlertsTotal tracks emitted budget alerts.
	BudgetAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_alerts_total",
			Help: "Total number of budget alerts emitted",
		},
		[]string{"workspace_id", "provider", "alert_type"},
	)
)

// Broadcast metrics
var (
	// ProgressEventsTotal tracks published progress events.
	ProgressEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_events_total",
			Help: "Total number of published scan progress events",
		},
		[]string{"event_type"},
	)

	// ProgressPublishErrors tracks swallowed publish failures.
	ProgressPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_publish_errors_total",
			Help: "Total number of progress publish failures (best-effort, swallowed)",
		},
	)

	// WebsocketConnections tracks active websocket clients.
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Number of active websocket connections",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
