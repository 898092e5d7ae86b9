// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package alerting delivers alerts to the channels listed in alerting.json.
//
// Each channel is a Notifier. The Dispatcher selects the alerts a channel
// has not delivered yet, renders them with the Formatter and sends them
// through SendWithRetry:
//
//	PendingAlerts(channel) -> group by (user, alert name) -> ClaimNotification
//	    -> Formatter -> SendWithRetry(Notifier) -> MarkNotified | ReleaseNotification
//
// Delivery state is tracked per (alert, channel): a failure on one channel
// never blocks another, and a delivered pair is never sent again.
//
// Supported channels: slack, telegram, discord, teams, googlechat,
// rocketchat, mattermost, pushover, http_request, webhooks, email, dummy.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/buffalogs/internal/models"
)

// Outcome classifies a single send.
type Outcome int

const (
	Delivered Outcome = iota
	TransientFailure
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient"
	case PermanentFailure:
		return "permanent"
	default:
		return "unknown"
	}
}

// Result is what a Notifier reports for one Send.
type Result struct {
	Outcome    Outcome
	RetryAfter time.Duration // server-requested delay before the next attempt
	Reason     string
	StatusCode int
}

// OK reports whether the message was delivered.
func (r Result) OK() bool { return r.Outcome == Delivered }

func delivered(status int) Result {
	return Result{Outcome: Delivered, StatusCode: status}
}

func transient(status int, format string, args ...any) Result {
	return Result{Outcome: TransientFailure, StatusCode: status, Reason: fmt.Sprintf(format, args...)}
}

func permanent(status int, format string, args ...any) Result {
	return Result{Outcome: PermanentFailure, StatusCode: status, Reason: fmt.Sprintf(format, args...)}
}

// MessageKind distinguishes alert notifications from summaries.
type MessageKind int

const (
	KindAlert MessageKind = iota
	KindSummary
)

// Message is a rendered notification.
type Message struct {
	Kind     MessageKind
	Title    string
	Body     string
	Name     models.AlertName // alert type, empty for summaries
	Username string           // user the alerts belong to, empty for summaries

	// Alerts are the alerts rendered into the message, oldest first.
	// More than one means a clubbed message.
	Alerts []*models.Alert
}

// Notifier sends messages to one channel.
type Notifier interface {
	// Name is the channel key used in alerting.json and notified_status.
	Name() string

	// Send makes one delivery attempt. It never panics on remote errors;
	// failures are described by the Result.
	Send(ctx context.Context, msg Message) Result
}

// perAlert is implemented by notifiers that post structured alert records
// and therefore receive one message per alert instead of clubbed messages.
type perAlert interface {
	perAlert()
}

// NotifyError wraps a failed Result.
type NotifyError struct {
	Channel string
	Result  Result
}

func (e *NotifyError) Error() string {
	if e.Result.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %s", e.Channel, e.Result.Outcome, e.Result.StatusCode, e.Result.Reason)
	}
	return fmt.Sprintf("%s: %s failure: %s", e.Channel, e.Result.Outcome, e.Result.Reason)
}

// Kind is the label printed by the CLI.
func (e *NotifyError) Kind() string { return "NotifyError" }

// Transient reports whether a later run may succeed.
func (e *NotifyError) Transient() bool { return e.Result.Outcome == TransientFailure }

// Err returns nil for a delivered Result and a *NotifyError otherwise.
func (r Result) Err(channel string) error {
	if r.OK() {
		return nil
	}
	return &NotifyError{Channel: channel, Result: r}
}
