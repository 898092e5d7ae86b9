// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/buffalogs/internal/logging"
)

// ClaimNotification atomically moves (alertID, channel) from pending to
// sending, or takes over a sending claim made before staleBefore. Only the
// caller that gets true may send. A delivered pair is never claimed again.
func (db *DB) ClaimNotification(ctx context.Context, alertID int64, channel string, staleBefore time.Time) (bool, error) {
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO alert_notifications (alert_id, channel, state) VALUES (?, ?, ?)
		ON CONFLICT (alert_id, channel) DO NOTHING`,
		alertID, channel, statePending); err != nil {
		if isConflict(err) {
			return false, nil
		}
		return false, wrap("claim notification", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE alert_notifications
		SET state = ?, claimed_at = ?, attempts = attempts + 1
		WHERE alert_id = ? AND channel = ?
			AND (state = ? OR (state = ? AND claimed_at < ?))`,
		stateSending, db.now(), alertID, channel, statePending, stateSending, staleBefore.UTC())
	if err != nil {
		if isConflict(err) {
			logging.Debug().Int64("alert_id", alertID).Str("channel", channel).Msg("Notification claimed concurrently")
			return false, nil
		}
		return false, wrap("claim notification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("claim notification", err)
	}
	return n == 1, nil
}

// MarkNotified records delivery on channel. The pair must be claimed.
func (db *DB) MarkNotified(ctx context.Context, alertID int64, channel string) error {
	now := db.now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE alert_notifications SET state = ?, delivered_at = ?, claimed_at = NULL
		WHERE alert_id = ? AND channel = ? AND state = ?`,
		stateDelivered, now, alertID, channel, stateSending)
	if err != nil {
		return wrap("mark notified", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap("mark notified", fmt.Errorf("alert %d on %s is not claimed", alertID, channel))
	}
	if _, err := db.conn.ExecContext(ctx, `UPDATE alerts SET updated_at = ? WHERE id = ?`, now, alertID); err != nil {
		return wrap("mark notified", err)
	}
	return nil
}

// ReleaseNotification returns a claimed pair to pending so a later run
// may retry it.
func (db *DB) ReleaseNotification(ctx context.Context, alertID int64, channel string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE alert_notifications SET state = ?, claimed_at = NULL
		WHERE alert_id = ? AND channel = ? AND state = ?`,
		statePending, alertID, channel, stateSending)
	return wrap("release notification", err)
}

// NotificationAttempts returns how many times (alertID, channel) was
// claimed.
func (db *DB) NotificationAttempts(ctx context.Context, alertID int64, channel string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempts), 0) FROM alert_notifications WHERE alert_id = ? AND channel = ?`,
		alertID, channel).Scan(&n)
	return n, wrap("notification attempts", err)
}
