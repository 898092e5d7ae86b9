// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
)

// pendingLimit caps the alerts one channel handles per run.
const pendingLimit = 1000

// Per-channel send rate. Messages are spaced evenly, without bursts.
const (
	channelRate  = 5 // messages per second
	channelBurst = 1
)

// Store is the persistence used by the dispatcher. *store.DB implements it.
type Store interface {
	PendingAlerts(ctx context.Context, channel string, since time.Time, limit int) ([]*models.Alert, error)
	ClaimNotification(ctx context.Context, alertID int64, channel string, staleBefore time.Time) (bool, error)
	MarkNotified(ctx context.Context, alertID int64, channel string) error
	ReleaseNotification(ctx context.Context, alertID int64, channel string) error
	AlertsBetween(ctx context.Context, since, until time.Time) ([]*models.Alert, error)
	RecordTask(ctx context.Context, t models.TaskSettings) error
}

// Dispatcher runs notify_alerts and the alert summary over a set of
// notifiers.
type Dispatcher struct {
	store     Store
	notifiers []Notifier
	format    *Formatter
	cfg       config.NotifyConfig
	limiters  map[string]*rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the time source and the retry sleep. Tests only.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// NewDispatcher creates a dispatcher. A nil formatter uses the embedded
// templates.
func NewDispatcher(st Store, notifiers []Notifier, f *Formatter, cfg config.NotifyConfig, opts ...Option) (*Dispatcher, error) {
	if f == nil {
		var err error
		if f, err = NewFormatter(""); err != nil {
			return nil, err
		}
	}
	d := &Dispatcher{
		store:     st,
		notifiers: notifiers,
		format:    f,
		cfg:       cfg,
		limiters:  make(map[string]*rate.Limiter, len(notifiers)),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepContext,
	}
	for _, n := range notifiers {
		d.limiters[n.Name()] = rate.NewLimiter(rate.Limit(channelRate), channelBurst)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Notifiers returns the configured channels in alerting.json order.
func (d *Dispatcher) Notifiers() []Notifier { return d.notifiers }

func (d *Dispatcher) policy(channel string) RetryPolicy {
	p := DefaultRetryPolicy()
	if d.cfg.MaxAttempts > 0 {
		p.MaxAttempts = d.cfg.MaxAttempts
	}
	if d.cfg.BaseDelay > 0 {
		p.BaseDelay = d.cfg.BaseDelay
	}
	if d.cfg.MaxDelay > 0 {
		p.MaxDelay = d.cfg.MaxDelay
	}
	p.Limiter = d.limiters[channel]
	p.sleep = d.sleep
	return p
}

// Report summarizes a notify_alerts run.
type Report struct {
	Messages  int // messages attempted
	Delivered int // alerts marked notified
	Failed    int // alerts left pending after a failed send
	Skipped   int // alerts claimed by another run
}

func (r *Report) add(o Report) {
	r.Messages += o.Messages
	r.Delivered += o.Delivered
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// NotifyAlerts delivers every pending, unfiltered alert on every channel.
// Channels run concurrently and independently. Send failures leave the
// alerts pending for the next run and are not returned as errors; store
// errors are.
func (d *Dispatcher) NotifyAlerts(ctx context.Context, mode models.ExecutionMode) (*Report, error) {
	ctx = logging.ContextWithRun(ctx, models.TaskNotifyAlerts)
	began := time.Now()
	start := d.now()

	total := &Report{}
	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			rep, err := d.notifyChannel(ctx, n)
			mu.Lock()
			defer mu.Unlock()
			total.add(rep)
			if err != nil {
				errs = append(errs, err)
			}
		}(n)
	}
	wg.Wait()
	err := errors.Join(errs...)

	task := models.TaskSettings{
		TaskName:      models.TaskNotifyAlerts,
		ExecutionMode: mode,
		StartDate:     start,
		EndDate:       d.now(),
		Status:        models.TaskOK,
	}
	if err != nil {
		task.Status = models.TaskError
		task.ErrorReason = err.Error()
	}
	if recErr := d.store.RecordTask(context.WithoutCancel(ctx), task); recErr != nil && err == nil {
		err = recErr
	}
	metrics.RecordTask(models.TaskNotifyAlerts, string(mode), time.Since(began), err)

	logging.Ctx(ctx).Info().
		Int("channels", len(d.notifiers)).
		Int("messages", total.Messages).
		Int("delivered", total.Delivered).
		Int("failed", total.Failed).
		Int("skipped", total.Skipped).
		Dur("duration", time.Since(began)).
		Msg("Alerts notified")
	return total, err
}

func (d *Dispatcher) notifyChannel(ctx context.Context, n Notifier) (Report, error) {
	var rep Report
	channel := n.Name()
	log := logging.Ctx(ctx).With().Str("channel", channel).Logger()

	var since time.Time
	if d.cfg.Lookback > 0 {
		since = d.now().Add(-d.cfg.Lookback)
	}
	alerts, err := d.store.PendingAlerts(ctx, channel, since, pendingLimit)
	if err != nil {
		return rep, err
	}

	for _, group := range groupAlerts(n, alerts) {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		claimed, err := d.claim(ctx, channel, group)
		if err != nil {
			return rep, err
		}
		if skipped := len(group) - len(claimed); skipped > 0 {
			rep.Skipped += skipped
			metrics.NotificationsSent.WithLabelValues(channel, "skipped").Add(float64(skipped))
		}
		if len(claimed) == 0 {
			continue
		}

		msg, err := d.format.Alert(claimed)
		if err != nil {
			d.release(ctx, channel, claimed)
			return rep, err
		}
		rep.Messages++
		res := SendWithRetry(ctx, n, msg, d.policy(channel))
		if !res.OK() {
			rep.Failed += len(claimed)
			d.release(ctx, channel, claimed)
			log.Warn().
				Err(res.Err(channel)).
				Str("username", msg.Username).
				Str("alert_name", string(msg.Name)).
				Int("alerts", len(claimed)).
				Msg("Notification failed, alerts stay pending")
			continue
		}

		for _, a := range claimed {
			if err := d.store.MarkNotified(context.WithoutCancel(ctx), a.ID, channel); err != nil {
				return rep, err
			}
			if a.NotifiedStatus == nil {
				a.NotifiedStatus = make(map[string]bool)
			}
			a.NotifiedStatus[channel] = true
			rep.Delivered++
		}
		log.Debug().
			Str("username", msg.Username).
			Str("alert_name", string(msg.Name)).
			Int("alerts", len(claimed)).
			Msg("Notification sent")
	}
	return rep, nil
}

func (d *Dispatcher) claim(ctx context.Context, channel string, group []*models.Alert) ([]*models.Alert, error) {
	staleBefore := d.now().Add(-d.cfg.ClaimTTL)
	claimed := make([]*models.Alert, 0, len(group))
	for _, a := range group {
		ok, err := d.store.ClaimNotification(ctx, a.ID, channel, staleBefore)
		if err != nil {
			d.release(ctx, channel, claimed)
			return nil, err
		}
		if ok {
			claimed = append(claimed, a)
		}
	}
	return claimed, nil
}

func (d *Dispatcher) release(ctx context.Context, channel string, alerts []*models.Alert) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range alerts {
		if err := d.store.ReleaseNotification(ctx, a.ID, channel); err != nil {
			logging.Ctx(ctx).Error().
				Err(err).
				Int64("alert_id", a.ID).
				Str("channel", channel).
				Msg("Failed to release notification claim")
		}
	}
}

// groupAlerts clubs alerts of the same user and alert name, keeping the
// order of first appearance. Structured channels get one group per alert.
func groupAlerts(n Notifier, alerts []*models.Alert) [][]*models.Alert {
	if _, ok := n.(perAlert); ok {
		out := make([][]*models.Alert, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, []*models.Alert{a})
		}
		return out
	}

	type key struct {
		user string
		name models.AlertName
	}
	index := make(map[key]int)
	var out [][]*models.Alert
	for _, a := range alerts {
		k := key{strings.ToLower(a.Username), a.Name}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], a)
	}
	return out
}
