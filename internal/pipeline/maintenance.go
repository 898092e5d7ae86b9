// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package pipeline

import (
	"context"
	"time"

	"github.com/tomtom215/buffalogs/internal/detection"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/store"
)

// UpdateRiskLevel recomputes the risk band of the given users, or of every
// user when none is given, and stores User Risk Threshold alerts.
func (o *Orchestrator) UpdateRiskLevel(ctx context.Context, usernames ...string) error {
	s, err := o.settings(ctx)
	if err != nil {
		return err
	}
	if len(usernames) == 0 {
		users, err := o.store.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			usernames = append(usernames, u.Username)
		}
	}
	return o.updateRisk(ctx, s, usernames)
}

func (o *Orchestrator) updateRisk(ctx context.Context, s *detection.Settings, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	since := o.now().AddDate(0, 0, -s.Config.RiskHorizonDays)
	names := s.RiskIncrementAlerts()

	for _, username := range usernames {
		user, err := o.store.GetUser(ctx, username)
		if err != nil {
			return err
		}
		count, err := o.store.CountAlertsSince(ctx, user.ID, names, since)
		if err != nil {
			return err
		}
		upd := detection.ComputeRisk(user, count)
		if upd.Changed() || user.RiskValue != count {
			if err := o.store.UpdateUserRisk(ctx, user.ID, upd.Current, count); err != nil {
				return err
			}
		}
		if !upd.Raised() {
			continue
		}

		raw, err := o.lastAlertData(ctx, user.ID)
		if err != nil {
			return err
		}
		alert := detection.ThresholdAlert(user, upd, s, raw)
		if alert == nil {
			continue
		}
		if err := o.store.SaveAlert(ctx, alert); err != nil {
			return err
		}
		metrics.RecordAlert(string(alert.Name), alert.IsFiltered)
		logging.Ctx(ctx).Info().
			Str("username", user.Username).
			Str("from", string(upd.Previous)).
			Str("to", string(upd.Current)).
			Int("alerts", count).
			Msg("Risk level raised")
	}
	return o.refreshRiskGauge(ctx)
}

// lastAlertData returns the login_raw_data of the user's newest alert.
func (o *Orchestrator) lastAlertData(ctx context.Context, userID int64) (map[string]any, error) {
	alerts, err := o.store.UserAlerts(ctx, userID)
	if err != nil || len(alerts) == 0 {
		return nil, err
	}
	return alerts[len(alerts)-1].LoginRawData, nil
}

func (o *Orchestrator) refreshRiskGauge(ctx context.Context) error {
	users, err := o.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(models.RiskScores))
	for _, r := range models.RiskScores {
		counts[string(r)] = 0
	}
	for _, u := range users {
		counts[string(u.RiskScore)]++
	}
	metrics.SetUsersByRisk(counts)
	return nil
}

// CleanModels deletes users, logins and alerts not updated within the
// retention configured in the detection Config record.
func (o *Orchestrator) CleanModels(ctx context.Context, mode models.ExecutionMode) (store.CleanupResult, error) {
	ctx = logging.ContextWithRun(ctx, models.TaskCleanModels)
	began := time.Now()
	now := o.now()

	res, err := o.cleanModels(ctx, now)
	task := models.TaskSettings{
		TaskName:      models.TaskCleanModels,
		ExecutionMode: mode,
		StartDate:     began.UTC(),
		EndDate:       now,
		Status:        models.TaskOK,
	}
	if err != nil {
		task.Status = models.TaskError
		task.ErrorReason = err.Error()
	}
	if recErr := o.store.RecordTask(context.WithoutCancel(ctx), task); recErr != nil && err == nil {
		err = recErr
	}
	metrics.RecordTask(models.TaskCleanModels, string(mode), time.Since(began), err)
	if err != nil {
		return res, err
	}

	logging.Ctx(ctx).Info().
		Int64("users", res.Users).
		Int64("logins", res.Logins).
		Int64("alerts", res.Alerts).
		Msg("Old models cleaned")
	return res, nil
}

func (o *Orchestrator) cleanModels(ctx context.Context, now time.Time) (store.CleanupResult, error) {
	cfg, _, err := o.store.LoadConfig(ctx)
	if err != nil {
		return store.CleanupResult{}, err
	}
	return o.store.DeleteOlderThan(ctx, store.Retention{
		Users:  cutoff(now, cfg.UserMaxDays),
		Logins: cutoff(now, cfg.LoginMaxDays),
		Alerts: cutoff(now, cfg.AlertMaxDays),
	})
}

// cutoff returns now minus days, or the zero time (keep forever) for 0.
func cutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}
