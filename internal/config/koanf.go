// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/vpn"
)

// DefaultConfigPaths are searched in order when BUFFALOGS_CONFIG is unset.
var DefaultConfigPaths = []string{
	"buffalogs.yaml",
	"buffalogs.yml",
	"/etc/buffalogs/buffalogs.yaml",
}

// Environment variables read by Load.
const (
	ConfigPathEnvVar = "BUFFALOGS_CONFIG"
	ConfigDirEnvVar  = "BUFFALOGS_CONFIG_DIR"
	envPrefix        = "BUFFALOGS_"
)

func defaultConfig() *Config {
	logCfg := logging.DefaultConfig()
	logCfg.Output = nil
	return &Config{
		ConfigDir: "config/buffalogs",
		Database: DatabaseConfig{
			Path:      "/data/buffalogs.duckdb",
			MaxMemory: "1GB",
		},
		Logging: logCfg,
		Pipeline: PipelineConfig{
			Interval:         30 * time.Minute,
			MaxWindows:       6,
			MaxLag:           24 * time.Hour,
			SafetyDelay:      time.Minute,
			Workers:          4,
			IngestRetries:    3,
			IngestRetryDelay: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Interval:    5 * time.Minute,
			Lookback:    24 * time.Hour,
			ClaimTTL:    10 * time.Minute,
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Cleanup: CleanupConfig{Interval: 24 * time.Hour},
		Summary: SummaryConfig{Enabled: false, Period: "daily"},
		Server:  ServerConfig{Enabled: true, Addr: ":9180"},

		Anonymizer: vpn.DefaultConfig(),
	}
}

// Load builds the application config from, in increasing priority:
// defaults, an optional YAML file, and BUFFALOGS_* environment variables.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit YAML path ("" for none).
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &ConfigError{Source: path, Reason: "cannot parse YAML", Err: err}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &ConfigError{Source: "config", Reason: "cannot decode", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Source: "config", Reason: "invalid", Err: err}
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps BUFFALOGS_* variables (prefix stripped, lowercased) to
// koanf paths. Unlisted variables are ignored.
var envMappings = map[string]string{
	"config_dir":           "config_dir",
	"db_path":              "database.path",
	"db_max_memory":        "database.max_memory",
	"db_threads":           "database.threads",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
	"log_caller":           "logging.caller",
	"pipeline_interval":    "pipeline.interval",
	"pipeline_workers":     "pipeline.workers",
	"pipeline_max_windows": "pipeline.max_windows",
	"pipeline_max_lag":     "pipeline.max_lag",
	"notify_interval":      "notify.interval",
	"notify_lookback":      "notify.lookback",
	"notify_template_dir":  "notify.template_dir",
	"cleanup_interval":     "cleanup.interval",
	"summary_enabled":      "summary.enabled",
	"summary_period":       "summary.period",
	"server_enabled":       "server.enabled",
	"server_addr":          "server.addr",

	"anonymizer_data_file":  "anonymizer.data_file",
	"anonymizer_source_url": "anonymizer.source_url",
}

func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return envMappings[key]
}
