// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
)

// RetryPolicy controls SendWithRetry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Limiter paces attempts on one channel. Nil means unlimited.
	Limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is five attempts with delays of 1s, 2s, 4s, 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// backoff returns the delay before attempt (2-based), honoring a
// server-requested RetryAfter.
func (p RetryPolicy) backoff(attempt int, last Result) time.Duration {
	if last.RetryAfter > 0 {
		return last.RetryAfter
	}
	delay := p.BaseDelay * (1 << uint(attempt-2))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// SendWithRetry sends msg, retrying transient failures with exponential
// backoff (base 2). Permanent failures and a cancelled context end the loop
// at once. The last Result is returned.
func SendWithRetry(ctx context.Context, n Notifier, msg Message, p RetryPolicy) Result {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	channel := n.Name()
	log := logging.Ctx(ctx).With().Str("channel", channel).Logger()

	var last Result
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt, last)
			metrics.NotificationRetries.WithLabelValues(channel).Inc()
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("reason", last.Reason).
				Msg("Retrying notification")
			if err := sleep(ctx, delay); err != nil {
				return transient(last.StatusCode, "%s (cancelled: %v)", last.Reason, err)
			}
		}
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return transient(last.StatusCode, "rate limiter: %v", err)
			}
		}

		began := time.Now()
		last = n.Send(ctx, msg)
		metrics.RecordNotification(channel, last.Outcome.String(), time.Since(began))

		switch last.Outcome {
		case Delivered:
			return last
		case PermanentFailure:
			log.Warn().
				Int("status", last.StatusCode).
				Str("reason", last.Reason).
				Msg("Permanent notification failure, not retrying")
			return last
		}
		if ctx.Err() != nil {
			return last
		}
	}
	return last
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
