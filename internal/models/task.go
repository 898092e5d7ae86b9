// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package models

import (
	"fmt"
	"time"
)

// ExecutionMode records who launched a task.
type ExecutionMode string

const (
	ModeManual    ExecutionMode = "manual"
	ModeAutomatic ExecutionMode = "automatic"
)

// ParseExecutionMode validates a mode string.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ModeManual, ModeAutomatic:
		return ExecutionMode(s), nil
	}
	return "", fmt.Errorf("execution mode must be %q or %q, got %q", ModeManual, ModeAutomatic, s)
}

// TaskStatus is the termination state recorded for a task run.
type TaskStatus string

const (
	TaskOK    TaskStatus = "ok"
	TaskError TaskStatus = "error"
)

// Task names recorded in TaskSettings.
const (
	TaskProcessLogs  = "process_logs"
	TaskNotifyAlerts = "notify_alerts"
	TaskCleanModels  = "clean_models_periodically"
	TaskAlertSummary = "scheduled_alert_summary"
	TaskClearModels  = "clear_models"
	TaskResetRisk    = "reset_user_risk_score"
	TaskUpdateConfig = "update_config"
	TaskSetupConfig  = "setup_config"
	TaskUpdateRisk   = "update_risk_level"
)

// TaskSettings stores the last window a task covered.
type TaskSettings struct {
	TaskName      string        `json:"task_name"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	Status        TaskStatus    `json:"status"`
	ErrorReason   string        `json:"error_reason,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
