// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package services

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/buffalogs/internal/logging"
)

// RunFunc is one execution of a periodic task.
type RunFunc func(ctx context.Context) error

// TaskService runs a RunFunc on a fixed interval under suture.
//
// A run error is logged and the ticker keeps going: the task records its own
// failure in task_settings and the next tick retries. Only a panic reaches
// the supervisor.
type TaskService struct {
	name       string
	interval   time.Duration
	timeout    time.Duration
	runOnStart bool
	run        RunFunc
}

// TaskOption configures a TaskService.
type TaskOption func(*TaskService)

// WithRunOnStart runs the task immediately instead of waiting one interval.
func WithRunOnStart() TaskOption {
	return func(s *TaskService) { s.runOnStart = true }
}

// WithRunTimeout bounds every run. Zero means no bound besides shutdown.
func WithRunTimeout(d time.Duration) TaskOption {
	return func(s *TaskService) { s.timeout = d }
}

// NewTaskService creates a periodic task service.
func NewTaskService(name string, interval time.Duration, run RunFunc, opts ...TaskOption) *TaskService {
	s := &TaskService{name: name, interval: interval, run: run}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve implements suture.Service. A non-positive interval disables the task.
func (s *TaskService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		logging.Info().Str("task", s.name).Msg("Task disabled, interval not set")
		return suture.ErrDoNotRestart
	}

	logging.Info().Str("task", s.name).Dur("interval", s.interval).Msg("Task scheduler started")

	if s.runOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("task", s.name).Msg("Task scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *TaskService) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.run(runCtx); err != nil {
		logging.Error().Err(err).Str("task", s.name).Msg("Task run failed")
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *TaskService) String() string {
	return s.name
}
