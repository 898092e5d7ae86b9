// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

// DummyNotifier only logs. Useful to exercise the pipeline without a
// real channel.
type DummyNotifier struct{}

func (DummyNotifier) Name() string { return config.AlerterDummy }

func (DummyNotifier) Send(ctx context.Context, msg Message) Result {
	logging.Ctx(ctx).Info().
		Str("title", msg.Title).
		Str("username", msg.Username).
		Int("alerts", len(msg.Alerts)).
		Msg("Dummy alert")
	return delivered(0)
}
