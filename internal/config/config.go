// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package config loads every configuration surface of BuffaLogs:
//
//   - the application config (YAML file plus BUFFALOGS_* environment variables),
//   - ingestion.json, which selects and configures the log source,
//   - alerting.json, which selects and configures the notifiers,
//   - the detection Config record, compiled into Rules before each task.
//
// Errors are *ConfigError for unreadable or incomplete files and
// *ValidationError for bad values inside the detection record.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/vpn"
)

// Config is the application configuration.
type Config struct {
	// ConfigDir holds ingestion.json and alerting.json.
	ConfigDir string `koanf:"config_dir"`

	Database DatabaseConfig `koanf:"database"`
	Logging  logging.Config `koanf:"logging"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Notify   NotifyConfig   `koanf:"notify"`
	Cleanup  CleanupConfig  `koanf:"cleanup"`
	Summary  SummaryConfig  `koanf:"summary"`
	Server   ServerConfig   `koanf:"server"`

	Anonymizer vpn.Config `koanf:"anonymizer"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// PipelineConfig configures the process_logs task.
type PipelineConfig struct {
	// Interval is the width of one ingestion window.
	Interval time.Duration `koanf:"interval"`

	// MaxWindows caps how many windows a single automatic run may catch up.
	MaxWindows int `koanf:"max_windows"`

	// MaxLag is how far behind the last processed window may be before the
	// gap is abandoned and only the latest window is processed.
	MaxLag time.Duration `koanf:"max_lag"`

	// SafetyDelay keeps the newest window this far from now, so that slow
	// sources have indexed the events before they are queried.
	SafetyDelay time.Duration `koanf:"safety_delay"`

	// Workers is the number of users processed in parallel.
	Workers int `koanf:"workers"`

	// IngestRetries is the number of attempts for retryable source errors.
	IngestRetries int `koanf:"ingest_retries"`

	// IngestRetryDelay is the first backoff delay; it doubles per attempt.
	IngestRetryDelay time.Duration `koanf:"ingest_retry_delay"`
}

// NotifyConfig configures the notify_alerts task.
type NotifyConfig struct {
	Interval time.Duration `koanf:"interval"`

	// Lookback bounds how old a pending alert may be and still be sent.
	Lookback time.Duration `koanf:"lookback"`

	// TemplateDir optionally overrides the embedded message templates.
	TemplateDir string `koanf:"template_dir"`

	// ClaimTTL is how long a claimed notification stays locked before another
	// run may reclaim it.
	ClaimTTL time.Duration `koanf:"claim_ttl"`

	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

// CleanupConfig configures clean_models_periodically.
type CleanupConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// SummaryConfig configures the scheduled alert summary.
type SummaryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Period  string `koanf:"period"`
}

// ServerConfig configures the operational HTTP endpoint (metrics, health).
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("config_dir is required")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	return c.validateSummary()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads cannot be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.Interval < time.Minute {
		return fmt.Errorf("pipeline.interval must be at least 1m, got %s", p.Interval)
	}
	if p.MaxWindows < 1 {
		return fmt.Errorf("pipeline.max_windows must be at least 1")
	}
	if p.MaxLag < p.Interval {
		return fmt.Errorf("pipeline.max_lag (%s) must not be shorter than pipeline.interval (%s)", p.MaxLag, p.Interval)
	}
	if p.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if p.IngestRetries < 1 {
		return fmt.Errorf("pipeline.ingest_retries must be at least 1")
	}
	return nil
}

func (c *Config) validateNotify() error {
	n := c.Notify
	if n.Interval <= 0 {
		return fmt.Errorf("notify.interval must be positive")
	}
	if n.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1")
	}
	if n.BaseDelay <= 0 || n.MaxDelay < n.BaseDelay {
		return fmt.Errorf("notify.base_delay must be positive and not exceed notify.max_delay")
	}
	if n.ClaimTTL <= 0 {
		return fmt.Errorf("notify.claim_ttl must be positive")
	}
	return nil
}

func (c *Config) validateSummary() error {
	switch c.Summary.Period {
	case "daily", "weekly":
		return nil
	}
	return fmt.Errorf("summary.period must be daily or weekly, got %q", c.Summary.Period)
}
