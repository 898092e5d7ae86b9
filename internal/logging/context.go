// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	taskKey      contextKey = "task"
	requestIDKey contextKey = "request_id"
)

// NewRunID returns a short identifier for one task execution.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRun tags ctx with a task name and a fresh run ID. Every log
// line written through Ctx carries both, so one pipeline window or
// notifier pass can be followed end to end.
func ContextWithRun(ctx context.Context, task string) context.Context {
	ctx = context.WithValue(ctx, taskKey, task)
	return context.WithValue(ctx, runIDKey, NewRunID())
}

// RunIDFromContext returns the run ID or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// TaskFromContext returns the task name or "".
func TaskFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(taskKey).(string); ok {
		return t
	}
	return ""
}

// ContextWithRequestID tags ctx with the ID of an HTTP request.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the run fields found in ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := With()
	if task := TaskFromContext(ctx); task != "" {
		lc = lc.Str("task", task)
	}
	if id := RunIDFromContext(ctx); id != "" {
		lc = lc.Str("run_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	l := lc.Logger()
	return &l
}
