// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

/*
Package metrics exposes Prometheus instrumentation for BuffaLogs.

Metrics are registered on the default registry through promauto and served
at /metrics by the serve command:

	curl http://localhost:9180/metrics

# Available Metrics

Ingestion:
  - buffalogs_ingest_requests_total{source, op, outcome}
  - buffalogs_ingest_duration_seconds{source, op}
  - buffalogs_ingest_events_total{source, result}

Circuit breaker:
  - buffalogs_circuit_breaker_state{name}
  - buffalogs_circuit_breaker_requests_total{name, result}
  - buffalogs_circuit_breaker_transitions_total{name, from, to}

Detection:
  - buffalogs_logins_processed_total{result}
  - buffalogs_alerts_created_total{name, filtered}
  - buffalogs_users_by_risk{risk_score}

Notification:
  - buffalogs_notifications_total{channel, outcome}
  - buffalogs_notification_duration_seconds{channel}
  - buffalogs_notification_retries_total{channel}

Tasks:
  - buffalogs_task_runs_total{task, mode, status}
  - buffalogs_task_duration_seconds{task}
  - buffalogs_task_last_success_timestamp_seconds{task}
  - buffalogs_pipeline_window_lag_seconds

Helpers such as RecordIngest and RecordTask keep label values consistent
across callers.
*/
package metrics
