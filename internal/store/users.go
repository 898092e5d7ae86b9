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
	"strings"

	"github.com/tomtom215/buffalogs/internal/models"
)

const userColumns = `id, username, risk_score, risk_value, created_at, updated_at`

func scanUser(s rowScanner, u *models.User) error {
	var risk string
	if err := s.Scan(&u.ID, &u.Username, &risk, &u.RiskValue, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.RiskScore = models.RiskScore(risk)
	return nil
}

// GetOrCreateUser returns the user with the given (lowercased) username,
// creating it on first sight. Existing users get updated_at refreshed so
// that active accounts survive cleanup.
func (db *DB) GetOrCreateUser(ctx context.Context, username string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, wrap("get or create user", fmt.Errorf("empty username"))
	}
	now := db.now()
	q := `INSERT INTO users (username, risk_score, risk_value, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT (username) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	u := &models.User{}
	if err := scanUser(db.conn.QueryRowContext(ctx, q, username, string(models.RiskNone), now, now), u); err != nil {
		return nil, wrap("get or create user", err)
	}
	return u, nil
}

// GetUser returns the user by username or an error wrapping ErrNotFound.
func (db *DB) GetUser(ctx context.Context, username string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	u := &models.User{}
	err := scanUser(db.conn.QueryRowContext(ctx, q, strings.ToLower(strings.TrimSpace(username))), u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrap("get user", fmt.Errorf("user %q: %w", username, ErrNotFound))
	}
	if err != nil {
		return nil, wrap("get user", err)
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer closeWithLog(rows, "rows")

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u); err != nil {
			return nil, wrap("list users", err)
		}
		users = append(users, u)
	}
	return users, wrap("list users", rows.Err())
}

// UpdateUserRisk writes the computed band and alert count.
func (db *DB) UpdateUserRisk(ctx context.Context, userID int64, score models.RiskScore, value int) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET risk_score = ?, risk_value = ?, updated_at = ? WHERE id = ?`,
		string(score), value, db.now(), userID)
	if err != nil {
		return wrap("update user risk", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap("update user risk", fmt.Errorf("user %d: %w", userID, ErrNotFound))
	}
	return nil
}

// ResetRiskScore sets the risk band of one user, or of all users when
// username is empty. risk_value is reset to zero. It returns the number of
// users changed.
func (db *DB) ResetRiskScore(ctx context.Context, username string, score models.RiskScore) (int64, error) {
	q := `UPDATE users SET risk_score = ?, risk_value = 0, updated_at = ?`
	args := []any{string(score), db.now()}
	if username != "" {
		q += ` WHERE username = ?`
		args = append(args, strings.ToLower(strings.TrimSpace(username)))
	}
	res, err := db.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, wrap("reset risk score", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("reset risk score", err)
	}
	if n == 0 && username != "" {
		return 0, wrap("reset risk score", fmt.Errorf("user %q: %w", username, ErrNotFound))
	}
	return n, nil
}
