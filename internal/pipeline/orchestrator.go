// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package pipeline runs the process_logs task: it pulls login events for
// a time window from the ingestion source, runs detection per user and
// persists logins with their alerts, then recomputes risk bands.
//
// Users are processed in parallel; the events of one user are processed
// serially in timestamp order so that detection only sees earlier logins.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/detection"
	"github.com/tomtom215/buffalogs/internal/ingestion"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/store"
)

// Store is the persistence used by the orchestrator. *store.DB implements it.
type Store interface {
	LoadConfig(ctx context.Context) (models.Config, bool, error)
	GetOrCreateUser(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	LoginsBefore(ctx context.Context, userID int64, before time.Time) ([]models.Login, error)
	SaveLoginWithAlerts(ctx context.Context, login *models.Login, alerts []*models.Alert) (bool, error)
	SaveAlert(ctx context.Context, a *models.Alert) error
	UserAlerts(ctx context.Context, userID int64) ([]*models.Alert, error)
	CountAlertsSince(ctx context.Context, userID int64, names []models.AlertName, since time.Time) (int, error)
	UpdateUserRisk(ctx context.Context, userID int64, score models.RiskScore, value int) error
	RecordTask(ctx context.Context, t models.TaskSettings) error
	GetTask(ctx context.Context, name string, mode models.ExecutionMode) (*models.TaskSettings, error)
	DeleteOlderThan(ctx context.Context, r store.Retention) (store.CleanupResult, error)
}

// SourceFunc returns the active ingestion source. It is called once per
// task so that changes to ingestion.json apply to the next run.
type SourceFunc func(ctx context.Context) (ingestion.Source, error)

// Orchestrator runs detection windows.
type Orchestrator struct {
	store  Store
	source SourceFunc
	engine *detection.Engine
	anon   detection.AnonymizerLookup
	cfg    config.PipelineConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithAnonymizer sets the lookup used by the anonymous IP detector.
func WithAnonymizer(a detection.AnonymizerLookup) Option {
	return func(o *Orchestrator) { o.anon = a }
}

// WithEngine replaces the default detection engine.
func WithEngine(e *detection.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithClock replaces the time source and the backoff sleep. Tests only.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New creates an orchestrator.
func New(st Store, source SourceFunc, cfg config.PipelineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  st,
		source: source,
		engine: detection.NewEngine(),
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.Workers < 1 {
		o.cfg.Workers = 1
	}
	if o.cfg.IngestRetries < 1 {
		o.cfg.IngestRetries = 1
	}
	return o
}

// Report summarizes one or more processed windows.
type Report struct {
	Windows    int
	Users      int64
	Logins     int64
	Duplicates int64
	Ignored    int64
	Alerts     int64
	Skipped    int64
}

func (r *Report) add(other *Report) {
	r.Windows += other.Windows
	r.Users += other.Users
	r.Logins += other.Logins
	r.Duplicates += other.Duplicates
	r.Ignored += other.Ignored
	r.Alerts += other.Alerts
	r.Skipped += other.Skipped
}

// counters is the concurrent accumulator behind a Report.
type counters struct {
	users, logins, duplicates, ignored, alerts, skipped atomic.Int64
}

func (c *counters) report() *Report {
	return &Report{
		Windows:    1,
		Users:      c.users.Load(),
		Logins:     c.logins.Load(),
		Duplicates: c.duplicates.Load(),
		Ignored:    c.ignored.Load(),
		Alerts:     c.alerts.Load(),
		Skipped:    c.skipped.Load(),
	}
}

// ExecProcessLogs processes the single window [start, end) in manual mode.
func (o *Orchestrator) ExecProcessLogs(ctx context.Context, start, end time.Time) (*Report, error) {
	return o.RunWindow(ctx, models.ModeManual, start, end)
}

// RunWindow processes [start, end) and records the run in TaskSettings
// under mode.
func (o *Orchestrator) RunWindow(ctx context.Context, mode models.ExecutionMode, start, end time.Time) (*Report, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, &config.ValidationError{Field: "window", Value: start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339), Reason: "start must be before end"}
	}
	if logging.RunIDFromContext(ctx) == "" {
		ctx = logging.ContextWithRun(ctx, models.TaskProcessLogs)
	}

	began := time.Now()
	rep, err := o.processWindow(ctx, start, end)

	task := models.TaskSettings{
		TaskName:      models.TaskProcessLogs,
		ExecutionMode: mode,
		StartDate:     start,
		EndDate:       end,
		Status:        models.TaskOK,
	}
	if err != nil {
		task.Status = models.TaskError
		task.ErrorReason = err.Error()
	}
	if recErr := o.store.RecordTask(context.WithoutCancel(ctx), task); recErr != nil {
		if err == nil {
			err = recErr
		} else {
			logging.Ctx(ctx).Error().Err(recErr).Msg("Failed to record task settings")
		}
	}
	metrics.RecordTask(models.TaskProcessLogs, string(mode), time.Since(began), err)

	if err != nil {
		return rep, err
	}
	metrics.PipelineWindowLag.Set(o.now().Sub(end).Seconds())
	logging.Ctx(ctx).Info().
		Time("window_start", start).
		Time("window_end", end).
		Int64("users", rep.Users).
		Int64("logins", rep.Logins).
		Int64("alerts", rep.Alerts).
		Int64("duplicates", rep.Duplicates).
		Int64("skipped_users", rep.Skipped).
		Dur("duration", time.Since(began)).
		Msg("Window processed")
	return rep, nil
}

// ProcessLogs runs the automatic catch-up: consecutive windows of
// Interval starting where the last automatic run ended, at most MaxWindows
// of them, none ending later than now minus SafetyDelay. When there is no
// previous run, or it ended more than MaxLag ago, the gap is logged as lost
// and only the latest window is processed. A window that failed is
// retried first.
func (o *Orchestrator) ProcessLogs(ctx context.Context) (*Report, error) {
	ctx = logging.ContextWithRun(ctx, models.TaskProcessLogs)
	windows, err := o.pendingWindows(ctx)
	if err != nil {
		return nil, err
	}

	total := &Report{}
	for _, w := range windows {
		rep, err := o.RunWindow(ctx, models.ModeAutomatic, w[0], w[1])
		if rep != nil {
			total.add(rep)
		}
		if err != nil {
			return total, err
		}
	}
	if len(windows) == 0 {
		logging.Ctx(ctx).Debug().Msg("No complete window to process")
	}
	return total, nil
}

func (o *Orchestrator) pendingWindows(ctx context.Context) ([][2]time.Time, error) {
	now := o.now()
	limit := now.Add(-o.cfg.SafetyDelay)
	latest := [][2]time.Time{{limit.Add(-o.cfg.Interval), limit}}

	last, err := o.store.GetTask(ctx, models.TaskProcessLogs, models.ModeAutomatic)
	if err != nil {
		if store.IsNotFound(err) {
			return latest, nil
		}
		return nil, err
	}

	from := last.EndDate
	if last.Status == models.TaskError {
		from = last.StartDate
	}
	if from.IsZero() || now.Sub(from) > o.cfg.MaxLag {
		logging.Ctx(ctx).Warn().
			Time("last_end", from).
			Time("resume_at", latest[0][0]).
			Msg("Data lost: previous run is too old, processing only the latest window")
		return latest, nil
	}

	var windows [][2]time.Time
	for i := 0; i < o.cfg.MaxWindows; i++ {
		end := from.Add(o.cfg.Interval)
		if end.After(limit) {
			break
		}
		windows = append(windows, [2]time.Time{from, end})
		from = end
	}
	return windows, nil
}

// settings loads and compiles the detection Config record.
func (o *Orchestrator) settings(ctx context.Context) (*detection.Settings, error) {
	cfg, _, err := o.store.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := config.CompileConfig(cfg)
	if err != nil {
		return nil, err
	}
	return detection.NewSettings(rules, o.anon), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func windowError(start, end time.Time, err error) error {
	return fmt.Errorf("window %s - %s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
}
