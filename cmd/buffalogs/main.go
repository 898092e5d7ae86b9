// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Command buffalogs detects anomalous logins in authentication logs and
// sends alerts about them.
//
// # Configuration
//
// Settings are loaded with koanf, highest priority last:
//   - built-in defaults
//   - a YAML file (BUFFALOGS_CONFIG, or buffalogs.yaml in the working directory)
//   - BUFFALOGS_* environment variables, optionally from a .env file
//
// The log source and the alert channels are configured by ingestion.json and
// alerting.json in BUFFALOGS_CONFIG_DIR.
//
// # Usage
//
//	buffalogs impossible_travel                         # process pending windows
//	buffalogs impossible_travel --start 2024-05-01T10:00:00Z --end 2024-05-01T10:30:00Z
//	buffalogs notify_alerts
//	buffalogs update_config --vip_users alice,bob
//	buffalogs serve                                     # run everything on a schedule
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. In serve mode the supervisor
// stops every task and the HTTP endpoint before the database is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tomtom215/buffalogs/internal/commands"
	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn().Err(err).Msg("Cannot read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", commands.Kind(err), err)
		return commands.ExitCode(err)
	}
	logging.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &commands.Env{
		Config:  cfg,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Stdin:   os.Stdin,
		Version: version,
	}
	return commands.Run(ctx, env, os.Args[1:])
}
