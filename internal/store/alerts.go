// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/models"
)

const alertSelect = `SELECT a.id, a.user_id, u.username, a.login_id, a.name, a.description,
		a.login_raw_data, a.is_vip, a.is_filtered, a.filter_type, a.created_at, a.updated_at
	FROM alerts a JOIN users u ON u.id = a.user_id`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanAlert(s rowScanner, a *models.Alert) error {
	var loginID sql.NullInt64
	var raw, filters sql.NullString
	var name string
	if err := s.Scan(
		&a.ID,
		&a.UserID,
		&a.Username,
		&loginID,
		&name,
		&a.Description,
		&raw,
		&a.IsVIP,
		&a.IsFiltered,
		&filters,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return err
	}
	a.Name = models.AlertName(name)
	if loginID.Valid {
		id := loginID.Int64
		a.LoginID = &id
	}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &a.LoginRawData); err != nil {
			return fmt.Errorf("alert %d: decode login_raw_data: %w", a.ID, err)
		}
	}
	if filters.Valid && filters.String != "" {
		if err := json.Unmarshal([]byte(filters.String), &a.FilterType); err != nil {
			return fmt.Errorf("alert %d: decode filter_type: %w", a.ID, err)
		}
	}
	return nil
}

func insertAlert(ctx context.Context, q queryer, a *models.Alert, now time.Time) error {
	raw, err := json.Marshal(a.LoginRawData)
	if err != nil {
		return fmt.Errorf("encode login_raw_data: %w", err)
	}
	if a.FilterType == nil {
		a.FilterType = []models.FilterType{}
	}
	filters, err := json.Marshal(a.FilterType)
	if err != nil {
		return fmt.Errorf("encode filter_type: %w", err)
	}
	var loginID any
	if a.LoginID != nil {
		loginID = *a.LoginID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	a.IsFiltered = len(a.FilterType) > 0

	err = q.QueryRowContext(ctx,
		`INSERT INTO alerts (user_id, login_id, name, description, login_raw_data, is_vip,
			is_filtered, filter_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		a.UserID, loginID, string(a.Name), a.Description, string(raw), a.IsVIP,
		a.IsFiltered, string(filters), a.CreatedAt.UTC(), a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	// Alerts imported as already delivered keep that state per channel.
	for channel, delivered := range a.NotifiedStatus {
		if !delivered {
			continue
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO alert_notifications (alert_id, channel, state, delivered_at, attempts)
			VALUES (?, ?, ?, ?, 0)`,
			a.ID, channel, stateDelivered, now); err != nil {
			return fmt.Errorf("insert notification state: %w", err)
		}
	}
	return nil
}

// SaveAlert inserts an alert that has no login of its own, such as a
// risk threshold alert.
func (db *DB) SaveAlert(ctx context.Context, a *models.Alert) error {
	return db.withTx(ctx, "save alert", func(tx *sql.Tx) error {
		return insertAlert(ctx, tx, a, db.now())
	})
}

// GetAlert returns one alert with its delivery state.
func (db *DB) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	a := &models.Alert{}
	err := scanAlert(db.conn.QueryRowContext(ctx, alertSelect+` WHERE a.id = ?`, id), a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrap("get alert", fmt.Errorf("alert %d: %w", id, ErrNotFound))
	}
	if err != nil {
		return nil, wrap("get alert", err)
	}
	alerts := []*models.Alert{a}
	if err := db.loadNotified(ctx, alerts); err != nil {
		return nil, wrap("get alert", err)
	}
	return a, nil
}

// PendingAlerts returns unfiltered alerts created at or after since that
// have not been delivered on channel, oldest first.
func (db *DB) PendingAlerts(ctx context.Context, channel string, since time.Time, limit int) ([]*models.Alert, error) {
	q := alertSelect + `
		WHERE NOT a.is_filtered AND a.created_at >= ?
			AND NOT EXISTS (
				SELECT 1 FROM alert_notifications n
				WHERE n.alert_id = a.id AND n.channel = ? AND n.state = ?
			)
		ORDER BY a.created_at, a.id`
	args := []any{since.UTC(), channel, stateDelivered}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryAlerts(ctx, "pending alerts", q, args...)
}

// AlertsBetween returns every alert created in [since, until).
func (db *DB) AlertsBetween(ctx context.Context, since, until time.Time) ([]*models.Alert, error) {
	q := alertSelect + ` WHERE a.created_at >= ? AND a.created_at < ? ORDER BY a.created_at, a.id`
	return db.queryAlerts(ctx, "alerts between", q, since.UTC(), until.UTC())
}

// UserAlerts returns the alerts of one user, oldest first.
func (db *DB) UserAlerts(ctx context.Context, userID int64) ([]*models.Alert, error) {
	q := alertSelect + ` WHERE a.user_id = ? ORDER BY a.created_at, a.id`
	return db.queryAlerts(ctx, "user alerts", q, userID)
}

// CountAlertsSince counts the user's alerts of the given types created at
// or after since. It is the input of the risk band.
func (db *DB) CountAlertsSince(ctx context.Context, userID int64, names []models.AlertName, since time.Time) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(names)+2)
	args = append(args, userID, since.UTC())
	for _, n := range names {
		args = append(args, string(n))
	}
	q := fmt.Sprintf(`SELECT COUNT(*) FROM alerts WHERE user_id = ? AND created_at >= ? AND name IN (%s)`,
		placeholders(len(names)))

	var n int
	if err := db.conn.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, wrap("count alerts", err)
	}
	return n, nil
}

func (db *DB) queryAlerts(ctx context.Context, op, q string, args ...any) ([]*models.Alert, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer closeWithLog(rows, "rows")

	var alerts []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		if err := scanAlert(rows, a); err != nil {
			return nil, wrap(op, err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	if err := db.loadNotified(ctx, alerts); err != nil {
		return nil, wrap(op, err)
	}
	return alerts, nil
}

// loadNotified fills NotifiedStatus from the delivered notification rows.
func (db *DB) loadNotified(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Alert, len(alerts))
	args := make([]any, 0, len(alerts)+1)
	args = append(args, stateDelivered)
	for _, a := range alerts {
		a.NotifiedStatus = map[string]bool{}
		byID[a.ID] = a
		args = append(args, a.ID)
	}

	q := fmt.Sprintf(`SELECT alert_id, channel FROM alert_notifications WHERE state = ? AND alert_id IN (%s)`,
		placeholders(len(alerts)))
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("load notified status: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var id int64
		var channel string
		if err := rows.Scan(&id, &channel); err != nil {
			return fmt.Errorf("load notified status: %w", err)
		}
		if a, ok := byID[id]; ok {
			a.NotifiedStatus[channel] = true
		}
	}
	return rows.Err()
}
