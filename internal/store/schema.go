// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package store

import (
	"context"
	"fmt"

	"github.com/tomtom215/buffalogs/internal/logging"
)

// Notification states in alert_notifications.
const (
	statePending   = "pending"
	stateSending   = "sending"
	stateDelivered = "delivered"
)

// configRowID is the single detection Config row.
const configRowID = 1

var schemaQueries = []string{
	`CREATE SEQUENCE IF NOT EXISTS users_id_seq`,
	`CREATE SEQUENCE IF NOT EXISTS logins_id_seq`,
	`CREATE SEQUENCE IF NOT EXISTS alerts_id_seq`,

	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
		username TEXT NOT NULL UNIQUE,
		risk_score TEXT NOT NULL DEFAULT 'No risk',
		risk_value INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	// Login and alert rows reference users(id) without a FOREIGN KEY:
	// DuckDB has no ON DELETE CASCADE, deletes cascade in deleteUsers.
	`CREATE TABLE IF NOT EXISTS logins (
		id BIGINT PRIMARY KEY DEFAULT nextval('logins_id_seq'),
		user_id BIGINT NOT NULL,
		event_time TIMESTAMP NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		latitude DOUBLE,
		longitude DOUBLE,
		user_agent TEXT NOT NULL DEFAULT '',
		device_fingerprint TEXT NOT NULL DEFAULT '',
		index_name TEXT NOT NULL DEFAULT '',
		event_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'success',
		failure_reason TEXT NOT NULL DEFAULT '',
		isp TEXT NOT NULL DEFAULT '',
		intelligence_category TEXT NOT NULL DEFAULT '',
		dedupe_key TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, dedupe_key)
	)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGINT PRIMARY KEY DEFAULT nextval('alerts_id_seq'),
		user_id BIGINT NOT NULL,
		login_id BIGINT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		login_raw_data TEXT,
		is_vip BOOLEAN NOT NULL DEFAULT false,
		is_filtered BOOLEAN NOT NULL DEFAULT false,
		filter_type TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS alert_notifications (
		alert_id BIGINT NOT NULL,
		channel TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		claimed_at TIMESTAMP,
		delivered_at TIMESTAMP,
		attempts INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (alert_id, channel)
	)`,

	`CREATE TABLE IF NOT EXISTS detection_config (
		id INTEGER PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS task_settings (
		task_name TEXT NOT NULL,
		execution_mode TEXT NOT NULL,
		start_date TIMESTAMP,
		end_date TIMESTAMP,
		status TEXT NOT NULL DEFAULT 'ok',
		error_reason TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (task_name, execution_mode)
	)`,

	// Indexed columns are never updated: DuckDB rejects upserts that assign
	// to them.
	`CREATE INDEX IF NOT EXISTS idx_logins_user_time ON logins(user_id, event_time)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_user_id ON alerts(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
}

func (db *DB) initSchema(ctx context.Context) error {
	for _, q := range schemaQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return wrap("schema", fmt.Errorf("failed to execute schema query: %w", err))
		}
	}

	// Flush the WAL so a crash right after startup does not replay DDL.
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}
	return nil
}
