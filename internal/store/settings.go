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

// LoadConfig returns the detection Config record. found is false when no
// record has been saved yet, in which case the defaults are returned.
func (db *DB) LoadConfig(ctx context.Context) (cfg models.Config, found bool, err error) {
	var data string
	var updated time.Time
	err = db.conn.QueryRowContext(ctx,
		`SELECT data, updated_at FROM detection_config WHERE id = ?`, configRowID).Scan(&data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultConfig(), false, nil
	}
	if err != nil {
		return cfg, false, wrap("load config", err)
	}

	cfg = models.DefaultConfig()
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return cfg, false, wrap("load config", fmt.Errorf("decode config: %w", err))
	}
	cfg.UpdatedAt = updated.UTC()
	return cfg, true, nil
}

// SaveConfig replaces the detection Config record.
func (db *DB) SaveConfig(ctx context.Context, cfg models.Config) error {
	cfg.UpdatedAt = db.now()
	data, err := json.Marshal(cfg)
	if err != nil {
		return wrap("save config", fmt.Errorf("encode config: %w", err))
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO detection_config (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		configRowID, string(data), cfg.UpdatedAt)
	return wrap("save config", err)
}

// RecordTask upserts the bookkeeping row of (TaskName, ExecutionMode).
func (db *DB) RecordTask(ctx context.Context, t models.TaskSettings) error {
	if t.Status == "" {
		t.Status = models.TaskOK
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO task_settings (task_name, execution_mode, start_date, end_date, status, error_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_name, execution_mode) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			status = EXCLUDED.status,
			error_reason = EXCLUDED.error_reason,
			updated_at = EXCLUDED.updated_at`,
		t.TaskName, string(t.ExecutionMode), nullTime(t.StartDate), nullTime(t.EndDate),
		string(t.Status), t.ErrorReason, db.now())
	return wrap("record task", err)
}

// GetTask returns the bookkeeping row or an error wrapping ErrNotFound.
func (db *DB) GetTask(ctx context.Context, name string, mode models.ExecutionMode) (*models.TaskSettings, error) {
	var start, end sql.NullTime
	var status, modeStr string
	t := &models.TaskSettings{}
	err := db.conn.QueryRowContext(ctx,
		`SELECT task_name, execution_mode, start_date, end_date, status, error_reason, updated_at
		FROM task_settings WHERE task_name = ? AND execution_mode = ?`,
		name, string(mode)).Scan(&t.TaskName, &modeStr, &start, &end, &status, &t.ErrorReason, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrap("get task", fmt.Errorf("task %s/%s: %w", name, mode, ErrNotFound))
	}
	if err != nil {
		return nil, wrap("get task", err)
	}
	t.ExecutionMode = models.ExecutionMode(modeStr)
	t.Status = models.TaskStatus(status)
	if start.Valid {
		t.StartDate = start.Time.UTC()
	}
	if end.Valid {
		t.EndDate = end.Time.UTC()
	}
	return t, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
