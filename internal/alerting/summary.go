// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
)

// Summary periods.
const (
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"
)

// topUsers is how many users a summary lists.
const topUsers = 10

// Count is one row of a summary breakdown.
type Count struct {
	Key   string
	Count int
}

// Summary aggregates the alerts raised in [Start, End).
type Summary struct {
	Start    time.Time
	End      time.Time
	Total    int
	Filtered int
	ByName   []Count
	ByUser   []Count // at most topUsers, by descending count
}

// SummaryWindow returns the last complete period before now: the previous
// UTC day for daily, the seven UTC days before today for weekly.
func SummaryWindow(period string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	switch period {
	case PeriodDaily, "":
		return end.AddDate(0, 0, -1), end, nil
	case PeriodWeekly:
		return end.AddDate(0, 0, -7), end, nil
	}
	return time.Time{}, time.Time{}, &config.ValidationError{
		Field: "period", Value: period, Reason: "must be daily or weekly",
	}
}

// BuildSummary aggregates alerts created in [start, end).
func BuildSummary(alerts []*models.Alert, start, end time.Time) Summary {
	s := Summary{Start: start.UTC(), End: end.UTC()}
	byName := make(map[string]int)
	byUser := make(map[string]int)
	for _, a := range alerts {
		s.Total++
		if a.IsFiltered {
			s.Filtered++
		}
		byName[string(a.Name)]++
		byUser[a.Username]++
	}
	s.ByName = sortedCounts(byName, 0)
	s.ByUser = sortedCounts(byUser, topUsers)
	return s
}

func sortedCounts(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SendSummary posts the summary of [start, end) to every channel. Delivery
// is not tracked per alert. Channel failures are joined into the error.
func (d *Dispatcher) SendSummary(ctx context.Context, mode models.ExecutionMode, start, end time.Time) (Summary, error) {
	ctx = logging.ContextWithRun(ctx, models.TaskAlertSummary)
	began := time.Now()

	s, err := d.sendSummary(ctx, start, end)

	task := models.TaskSettings{
		TaskName:      models.TaskAlertSummary,
		ExecutionMode: mode,
		StartDate:     start.UTC(),
		EndDate:       end.UTC(),
		Status:        models.TaskOK,
	}
	if err != nil {
		task.Status = models.TaskError
		task.ErrorReason = err.Error()
	}
	if recErr := d.store.RecordTask(context.WithoutCancel(ctx), task); recErr != nil && err == nil {
		err = recErr
	}
	metrics.RecordTask(models.TaskAlertSummary, string(mode), time.Since(began), err)
	return s, err
}

func (d *Dispatcher) sendSummary(ctx context.Context, start, end time.Time) (Summary, error) {
	if !start.Before(end) {
		return Summary{}, &config.ValidationError{
			Field: "window", Value: start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339),
			Reason: "start must be before end",
		}
	}
	alerts, err := d.store.AlertsBetween(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}
	s := BuildSummary(alerts, start, end)
	msg, err := d.format.Summary(s)
	if err != nil {
		return s, err
	}

	var errs []error
	for _, n := range d.notifiers {
		res := SendWithRetry(ctx, n, msg, d.policy(n.Name()))
		if err := res.Err(n.Name()); err != nil {
			errs = append(errs, err)
		}
	}
	logging.Ctx(ctx).Info().
		Time("start", s.Start).
		Time("end", s.End).
		Int("alerts", s.Total).
		Int("channels", len(d.notifiers)).
		Int("failed_channels", len(errs)).
		Msg("Alert summary sent")
	return s, errors.Join(errs...)
}
