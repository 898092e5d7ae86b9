// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"fmt"
	"strings"
)

// ConfigError reports a missing or invalid configuration file or section.
// It is always fatal for the task that hit it.
type ConfigError struct {
	Source string // file name or section, e.g. "ingestion.json" or "alerting.json:slack"
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Kind is the label printed by the CLI.
func (e *ConfigError) Kind() string { return "ConfigError" }

// ValidationError reports a bad value in the detection configuration:
// an invalid regex, IP or country.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid value %q: %s", e.Field, e.Value, e.Reason)
}

// Kind is the label printed by the CLI.
func (e *ValidationError) Kind() string { return "ValidationError" }

func configErrorf(source string, err error, format string, args ...any) *ConfigError {
	return &ConfigError{Source: source, Reason: fmt.Sprintf(format, args...), Err: err}
}
