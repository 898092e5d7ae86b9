// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	IngestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_ingest_requests_total",
			Help: "Total number of calls to the log source",
		},
		[]string{"source", "op", "outcome"}, // outcome: "success", "retryable", "fatal"
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buffalogs_ingest_duration_seconds",
			Help:    "Duration of calls to the log source in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 90},
		},
		[]string{"source", "op"},
	)

	IngestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_ingest_events_total",
			Help: "Raw login records normalized, by result",
		},
		[]string{"source", "result"}, // "emitted", "no_username", "bad_status", "no_timestamp"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buffalogs_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Detection Metrics
	LoginsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_logins_processed_total",
			Help: "Logins handled by the pipeline, by result",
		},
		[]string{"result"}, // "saved", "duplicate", "ignored_user", "ignored_ip"
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_alerts_created_total",
			Help: "Alerts persisted, by type and whether they were filtered",
		},
		[]string{"name", "filtered"},
	)

	DetectorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_detector_checks_total",
			Help: "Detector evaluations by detector and result",
		},
		[]string{"detector", "result"}, // "alert", "none", "suppressed"
	)

	UsersByRisk = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buffalogs_users_by_risk",
			Help: "Number of users per risk band after the last risk update",
		},
		[]string{"risk_score"},
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_notifications_total",
			Help: "Notification attempts by channel and outcome",
		},
		[]string{"channel", "outcome"}, // "delivered", "transient", "permanent", "skipped"
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buffalogs_notification_duration_seconds",
			Help:    "Duration of a single channel send in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	NotificationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_notification_retries_total",
			Help: "Transient failures that were retried",
		},
		[]string{"channel"},
	)

	// Task Metrics
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_task_runs_total",
			Help: "Task executions by status",
		},
		[]string{"task", "mode", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buffalogs_task_duration_seconds",
			Help:    "Task duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
		[]string{"task"},
	)

	TaskLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buffalogs_task_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"task"},
	)

	PipelineWindowLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buffalogs_pipeline_window_lag_seconds",
			Help: "Distance between now and the end of the last processed window",
		},
	)

	// Operational HTTP endpoint
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_http_requests_total",
			Help: "Requests served by the operational endpoint",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buffalogs_http_request_duration_seconds",
			Help:    "Latency of the operational endpoint",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"route"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buffalogs_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordIngest records one source call. outcome is derived from err and
// retryable.
func RecordIngest(source, op string, duration time.Duration, err error, retryable bool) {
	IngestDuration.WithLabelValues(source, op).Observe(duration.Seconds())
	outcome := "success"
	switch {
	case err == nil:
	case retryable:
		outcome = "retryable"
	default:
		outcome = "fatal"
	}
	IngestRequests.WithLabelValues(source, op, outcome).Inc()
}

// RecordTask records the end of a task run.
func RecordTask(task, mode string, duration time.Duration, err error) {
	TaskDuration.WithLabelValues(task).Observe(duration.Seconds())
	if err != nil {
		TaskRuns.WithLabelValues(task, mode, "error").Inc()
		return
	}
	TaskRuns.WithLabelValues(task, mode, "ok").Inc()
	TaskLastSuccess.WithLabelValues(task).Set(float64(time.Now().Unix()))
}

// RecordAlert counts a persisted alert.
func RecordAlert(name string, filtered bool) {
	f := "false"
	if filtered {
		f = "true"
	}
	AlertsCreated.WithLabelValues(name, f).Inc()
}

// RecordNotification records one channel send.
func RecordNotification(channel, outcome string, duration time.Duration) {
	NotificationsSent.WithLabelValues(channel, outcome).Inc()
	if duration > 0 {
		NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

// SetUsersByRisk replaces the per-band user gauge.
func SetUsersByRisk(counts map[string]int) {
	UsersByRisk.Reset()
	for band, n := range counts {
		UsersByRisk.WithLabelValues(band).Set(float64(n))
	}
}

// RecordHTTPRequest records one request to the operational endpoint.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
