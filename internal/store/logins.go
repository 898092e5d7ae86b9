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

	"github.com/tomtom215/buffalogs/internal/models"
)

const loginColumns = `id, user_id, event_time, ip, country, latitude, longitude, user_agent,
	device_fingerprint, index_name, event_id, status, failure_reason, isp,
	intelligence_category, created_at, updated_at`

func scanLogin(s rowScanner, l *models.Login) error {
	var lat, lon sql.NullFloat64
	var status string
	if err := s.Scan(
		&l.ID,
		&l.UserID,
		&l.Timestamp,
		&l.IP,
		&l.Country,
		&lat,
		&lon,
		&l.UserAgent,
		&l.DeviceFingerprint,
		&l.Index,
		&l.EventID,
		&status,
		&l.FailureReason,
		&l.ISP,
		&l.IntelligenceCategory,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return err
	}
	if lat.Valid {
		v := lat.Float64
		l.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		l.Longitude = &v
	}
	l.Status = models.LoginStatus(status)
	l.Timestamp = l.Timestamp.UTC()
	return nil
}

// SaveLoginWithAlerts inserts login and its alerts in one transaction.
// A login whose dedupe key was already stored for the user is skipped
// together with its alerts and saved is false. On success the IDs of
// login and alerts are set.
func (db *DB) SaveLoginWithAlerts(ctx context.Context, login *models.Login, alerts []*models.Alert) (saved bool, err error) {
	now := db.now()
	err = db.withTx(ctx, "save login", func(tx *sql.Tx) error {
		q := `INSERT INTO logins (user_id, event_time, ip, country, latitude, longitude, user_agent,
				device_fingerprint, index_name, event_id, status, failure_reason, isp,
				intelligence_category, dedupe_key, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, dedupe_key) DO NOTHING
			RETURNING id`
		row := tx.QueryRowContext(ctx, q,
			login.UserID,
			login.Timestamp.UTC(),
			login.IP,
			login.Country,
			nullFloat(login.Latitude),
			nullFloat(login.Longitude),
			login.UserAgent,
			login.DeviceFingerprint,
			login.Index,
			login.EventID,
			string(login.Status),
			login.FailureReason,
			login.ISP,
			login.IntelligenceCategory,
			login.DedupeKey(),
			now,
			now,
		)
		if err := row.Scan(&login.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("insert login: %w", err)
		}
		saved = true
		login.CreatedAt, login.UpdatedAt = now, now

		for _, a := range alerts {
			id := login.ID
			a.LoginID = &id
			a.UserID = login.UserID
			if err := insertAlert(ctx, tx, a, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return saved, nil
}

// LoginsBefore returns the user's successful logins strictly earlier than
// before, oldest first. It is the detection history for a new window.
func (db *DB) LoginsBefore(ctx context.Context, userID int64, before time.Time) ([]models.Login, error) {
	q := `SELECT ` + loginColumns + ` FROM logins
		WHERE user_id = ? AND event_time < ? AND status = ?
		ORDER BY event_time, id`
	rows, err := db.conn.QueryContext(ctx, q, userID, before.UTC(), string(models.LoginSuccess))
	if err != nil {
		return nil, wrap("logins before", err)
	}
	defer closeWithLog(rows, "rows")

	var logins []models.Login
	for rows.Next() {
		var l models.Login
		if err := scanLogin(rows, &l); err != nil {
			return nil, wrap("logins before", err)
		}
		logins = append(logins, l)
	}
	return logins, wrap("logins before", rows.Err())
}

// CountLogins returns the number of stored logins of a user.
func (db *DB) CountLogins(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM logins WHERE user_id = ?`, userID).Scan(&n)
	return n, wrap("count logins", err)
}

// nullFloat binds an optional coordinate as NULL or its value.
func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
