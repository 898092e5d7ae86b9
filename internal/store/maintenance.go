// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Model names accepted by Clear.
const (
	ModelUser         = "user"
	ModelLogin        = "login"
	ModelAlert        = "alert"
	ModelTaskSettings = "task_settings"
	ModelConfig       = "config"
)

// Models lists every model Clear accepts, in deletion order.
var Models = []string{ModelAlert, ModelLogin, ModelUser, ModelTaskSettings, ModelConfig}

// Clear deletes every row of the given model. Clearing users also removes
// their logins, alerts and notification state.
func (db *DB) Clear(ctx context.Context, model string) (int64, error) {
	var n int64
	err := db.withTx(ctx, "clear "+model, func(tx *sql.Tx) error {
		var err error
		switch model {
		case ModelUser:
			if _, err = tx.ExecContext(ctx, `DELETE FROM alert_notifications`); err != nil {
				return err
			}
			if _, err = tx.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
				return err
			}
			if _, err = tx.ExecContext(ctx, `DELETE FROM logins`); err != nil {
				return err
			}
			n, err = execCount(ctx, tx, `DELETE FROM users`)
		case ModelLogin:
			if _, err = tx.ExecContext(ctx, `UPDATE alerts SET login_id = NULL WHERE login_id IS NOT NULL`); err != nil {
				return err
			}
			n, err = execCount(ctx, tx, `DELETE FROM logins`)
		case ModelAlert:
			if _, err = tx.ExecContext(ctx, `DELETE FROM alert_notifications`); err != nil {
				return err
			}
			n, err = execCount(ctx, tx, `DELETE FROM alerts`)
		case ModelTaskSettings:
			n, err = execCount(ctx, tx, `DELETE FROM task_settings`)
		case ModelConfig:
			n, err = execCount(ctx, tx, `DELETE FROM detection_config`)
		default:
			return fmt.Errorf("unknown model %q", model)
		}
		return err
	})
	return n, err
}

// Retention holds the cutoffs of a cleanup run. Rows whose updated_at is
// before the cutoff are deleted; a zero cutoff disables that model.
type Retention struct {
	Users  time.Time
	Logins time.Time
	Alerts time.Time
}

// CleanupResult counts the rows removed by DeleteOlderThan.
type CleanupResult struct {
	Users  int64
	Logins int64
	Alerts int64
}

// DeleteOlderThan removes stale users (with everything they own), logins
// and alerts in one transaction.
func (db *DB) DeleteOlderThan(ctx context.Context, r Retention) (CleanupResult, error) {
	var res CleanupResult
	err := db.withTx(ctx, "cleanup", func(tx *sql.Tx) error {
		if !r.Users.IsZero() {
			cut := r.Users.UTC()
			stale := `SELECT id FROM users WHERE updated_at < ?`
			if _, err := tx.ExecContext(ctx, `DELETE FROM alert_notifications WHERE alert_id IN
				(SELECT id FROM alerts WHERE user_id IN (`+stale+`))`, cut); err != nil {
				return err
			}
			n, err := execCount(ctx, tx, `DELETE FROM alerts WHERE user_id IN (`+stale+`)`, cut)
			if err != nil {
				return err
			}
			res.Alerts += n
			if n, err = execCount(ctx, tx, `DELETE FROM logins WHERE user_id IN (`+stale+`)`, cut); err != nil {
				return err
			}
			res.Logins += n
			if res.Users, err = execCount(ctx, tx, `DELETE FROM users WHERE updated_at < ?`, cut); err != nil {
				return err
			}
		}

		if !r.Logins.IsZero() {
			cut := r.Logins.UTC()
			if _, err := tx.ExecContext(ctx, `UPDATE alerts SET login_id = NULL WHERE login_id IN
				(SELECT id FROM logins WHERE updated_at < ?)`, cut); err != nil {
				return err
			}
			n, err := execCount(ctx, tx, `DELETE FROM logins WHERE updated_at < ?`, cut)
			if err != nil {
				return err
			}
			res.Logins += n
		}

		if !r.Alerts.IsZero() {
			cut := r.Alerts.UTC()
			if _, err := tx.ExecContext(ctx, `DELETE FROM alert_notifications WHERE alert_id IN
				(SELECT id FROM alerts WHERE updated_at < ?)`, cut); err != nil {
				return err
			}
			n, err := execCount(ctx, tx, `DELETE FROM alerts WHERE updated_at < ?`, cut)
			if err != nil {
				return err
			}
			res.Alerts += n
		}
		return nil
	})
	return res, err
}

func execCount(ctx context.Context, tx *sql.Tx, q string, args ...any) (int64, error) {
	r, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}
