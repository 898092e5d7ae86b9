// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/buffalogs/internal/detection"
	"github.com/tomtom215/buffalogs/internal/ingestion"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
)

func (o *Orchestrator) processWindow(ctx context.Context, start, end time.Time) (*Report, error) {
	src, err := o.source(ctx)
	if err != nil {
		return &Report{Windows: 1}, err
	}
	s, err := o.settings(ctx)
	if err != nil {
		return &Report{Windows: 1}, err
	}

	usernames, err := o.listUsers(ctx, src, start, end)
	if err != nil {
		return &Report{Windows: 1}, windowError(start, end, err)
	}
	logging.Ctx(ctx).Debug().
		Str("source", src.Name()).
		Int("users", len(usernames)).
		Time("window_start", start).
		Msg("Users active in window")

	var c counters
	var mu sync.Mutex
	touched := make([]string, 0, len(usernames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, username := range dedupeUsernames(usernames) {
		g.Go(func() error {
			seen, err := o.processUser(gctx, src, s, start, end, username, &c)
			if err != nil {
				return err
			}
			if seen {
				mu.Lock()
				touched = append(touched, username)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.report(), windowError(start, end, err)
	}

	sort.Strings(touched)
	if err := o.updateRisk(ctx, s, touched); err != nil {
		return c.report(), windowError(start, end, err)
	}
	return c.report(), nil
}

// listUsers enumerates the window, retrying retryable source errors with
// exponential backoff.
func (o *Orchestrator) listUsers(ctx context.Context, src ingestion.Source, start, end time.Time) ([]string, error) {
	delay := o.cfg.IngestRetryDelay
	for attempt := 1; ; attempt++ {
		users, err := src.ProcessUsers(ctx, start, end)
		if err == nil {
			return users, nil
		}
		if !ingestion.IsRetryable(err) || attempt >= o.cfg.IngestRetries {
			return nil, err
		}
		logging.Ctx(ctx).Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("User enumeration failed, retrying")
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

// processUser handles one user's events. It reports whether any login of
// the user was stored or found already stored.
func (o *Orchestrator) processUser(ctx context.Context, src ingestion.Source, s *detection.Settings,
	start, end time.Time, username string, c *counters) (bool, error) {
	log := logging.Ctx(ctx).With().Str("username", username).Logger()

	raws, err := src.ProcessUserLogins(ctx, start, end, username)
	if err != nil {
		if ingestion.IsRetryable(err) {
			log.Warn().Err(err).Msg("Skipping user after retryable source error")
			c.skipped.Add(1)
			return false, nil
		}
		return false, err
	}

	events := o.admit(src.NormalizeFields(raws), s, c)
	if len(events) == 0 {
		return false, nil
	}

	user, err := o.store.GetOrCreateUser(ctx, username)
	if err != nil {
		return false, err
	}
	c.users.Add(1)

	prior, err := o.store.LoginsBefore(ctx, user.ID, start)
	if err != nil {
		return false, err
	}
	history := detection.NewHistory(prior)

	// risk counts the risk-raising alerts inside the horizon; alerts of a
	// duplicate login are not stored and do not count.
	since := o.now().AddDate(0, 0, -s.Config.RiskHorizonDays)
	risk, err := o.store.CountAlertsSince(ctx, user.ID, s.RiskIncrementAlerts(), since)
	if err != nil {
		return false, err
	}

	for i := range events {
		ev := &events[i]
		login := &models.Login{
			UserID:            user.ID,
			DeviceFingerprint: detection.Fingerprint(ev.UserAgent),
			LoginEvent:        *ev,
		}
		next := risk
		alerts := o.engine.EvaluateWithRisk(user, ev, history, s, &next)

		saved, err := o.store.SaveLoginWithAlerts(ctx, login, alerts)
		if err != nil {
			return true, err
		}
		if ev.Status == models.LoginSuccess {
			history.Append(*login)
		}
		if !saved {
			c.duplicates.Add(1)
			metrics.LoginsProcessed.WithLabelValues("duplicate").Inc()
			continue
		}
		risk = next
		c.logins.Add(1)
		metrics.LoginsProcessed.WithLabelValues("saved").Inc()
		for _, a := range alerts {
			c.alerts.Add(1)
			metrics.RecordAlert(string(a.Name), a.IsFiltered)
		}
	}
	log.Debug().Int("events", len(events)).Msg("User processed")
	return true, nil
}

// admit drops events of ignored users and ignored addresses and orders the
// rest by timestamp.
func (o *Orchestrator) admit(events []models.LoginEvent, s *detection.Settings, c *counters) []models.LoginEvent {
	kept := events[:0]
	for _, ev := range events {
		switch {
		case s.IgnoredUsers.Match(ev.Username):
			c.ignored.Add(1)
			metrics.LoginsProcessed.WithLabelValues("ignored_user").Inc()
		case s.IgnoredIPs.Contains(ev.IP):
			c.ignored.Add(1)
			metrics.LoginsProcessed.WithLabelValues("ignored_ip").Inc()
		default:
			kept = append(kept, ev)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})
	return kept
}

func dedupeUsernames(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, u := range in {
		u = strings.ToLower(strings.TrimSpace(u))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
