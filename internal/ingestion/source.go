// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package ingestion reads login events from the configured log store.
//
// Every adapter implements Source: it lists the users that logged in
// during a window, fetches each user's raw login records and projects
// them onto models.LoginEvent through the configured field mapping.
// Remote failures are returned as *IngestError and every remote call runs
// through a per-source circuit breaker.
package ingestion

import (
	"context"
	"time"

	"github.com/tomtom215/buffalogs/internal/models"
)

// Raw is one login record as returned by the source.
type Raw = map[string]any

// Source is a log store that can be queried for logins.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// ProcessUsers lists the usernames with an authentication event in
	// [start, end).
	ProcessUsers(ctx context.Context, start, end time.Time) ([]string, error)

	// ProcessUserLogins returns the user's raw login records in
	// [start, end), oldest first.
	ProcessUserLogins(ctx context.Context, start, end time.Time, username string) ([]Raw, error)

	// NormalizeFields maps raw records onto login events. Records without a
	// username or a usable status are dropped.
	NormalizeFields(raws []Raw) []models.LoginEvent
}
