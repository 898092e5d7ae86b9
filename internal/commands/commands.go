// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package commands implements the buffalogs command line: one subcommand per
// task (impossible_travel, notify_alerts, clean_models, summary), the
// administrative commands that edit the database, and serve, which runs every
// task on a schedule under the supervisor tree.
//
// Errors are printed as "Error: <kind>: <message>". Configuration, validation
// and usage errors exit with 2, every other failure with 1.
package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/pipeline"
	"github.com/tomtom215/buffalogs/internal/store"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitUsage   = 2
)

// Env is what a command runs against.
type Env struct {
	Config *config.Config

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// Version is reported by the health endpoint.
	Version string

	// Store, when set, is used instead of opening Config.Database and is
	// not closed by the command.
	Store *store.DB

	// Source overrides the source built from ingestion.json.
	Source pipeline.SourceFunc

	// Now overrides the wall clock.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// withStore runs fn with the configured store, opening and closing it when
// none was injected.
func (e *Env) withStore(ctx context.Context, fn func(db *store.DB) error) error {
	if e.Store != nil {
		return fn(e.Store)
	}
	db, err := store.Open(ctx, e.Config.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Error closing database")
		}
	}()
	return fn(db)
}

// UsageError reports a bad command line.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Kind is the label printed by the CLI.
func (e *UsageError) Kind() string { return "UsageError" }

func usageErrorf(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Kind returns the label of the first typed error in err's chain.
func Kind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "RuntimeError"
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return ExitOK
	}
	var (
		ce *config.ConfigError
		ve *config.ValidationError
		ue *UsageError
	)
	if errors.As(err, &ce) || errors.As(err, &ve) || errors.As(err, &ue) {
		return ExitUsage
	}
	return ExitRuntime
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *Env, args []string) error
}

var registry = []command{
	{"impossible_travel", "Run detection on one window, or catch up on pending windows", runImpossibleTravel},
	{"notify_alerts", "Send pending alerts on every configured channel", runNotifyAlerts},
	{"summary", "Send the alert summary of the last day or week", runSummary},
	{"clean_models", "Delete users, logins and alerts past their retention", runCleanModels},
	{"update_risk_level", "Recompute user risk scores", runUpdateRiskLevel},
	{"clear_models", "Empty one model, or every model except config", runClearModels},
	{"reset_user_risk_score", "Set the risk score of one user or of all users", runResetRiskScore},
	{"setup_config", "Create the detection configuration", runSetupConfig},
	{"update_config", "Update the detection configuration", runUpdateConfig},
	{"serve", "Run every task on its schedule and expose /metrics and /healthz", runServe},
}

// Run executes the command named by args[0] and returns the exit code.
func Run(ctx context.Context, env *Env, args []string) int {
	err := dispatch(ctx, env, args)
	if code := ExitCode(err); code != ExitOK {
		fmt.Fprintf(env.Stderr, "Error: %s: %v\n", Kind(err), err)
		return code
	}
	return ExitOK
}

func dispatch(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		printUsage(env.Stderr)
		return usageErrorf("no command given")
	}
	name := args[0]
	switch name {
	case "help", "-h", "--help":
		printUsage(env.Stdout)
		return nil
	}
	for _, c := range registry {
		if c.name == name {
			return c.run(ctx, env, args[1:])
		}
	}
	return usageErrorf("unknown command %q", name)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: buffalogs <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range registry {
		fmt.Fprintf(w, "  %-22s %s\n", c.name, c.summary)
	}
}

// flagSet is a command's flag set with the shared --execution_mode flag.
type flagSet struct {
	*flag.FlagSet
	mode string
}

func newFlagSet(env *Env, name, summary string) *flagSet {
	fs := &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs.SetOutput(env.Stderr)
	fs.StringVar(&fs.mode, "execution_mode", string(models.ModeManual), "recorded execution mode: manual or automatic")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: buffalogs %s [flags]\n\n%s\n\nFlags:\n", name, summary)
		fs.PrintDefaults()
	}
	return fs
}

func (fs *flagSet) parse(args []string) (models.ExecutionMode, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", &UsageError{Msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return "", usageErrorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	mode, err := models.ParseExecutionMode(fs.mode)
	if err != nil {
		return "", &UsageError{Msg: err.Error()}
	}
	return mode, nil
}

// isSet reports whether the flag was given on the command line.
func (fs *flagSet) isSet(name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// listFlag collects comma separated values; repeating the flag appends.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}

// track records the TaskSettings row of an administrative command.
func track(ctx context.Context, env *Env, db *store.DB, name string, mode models.ExecutionMode, fn func() error) error {
	began := time.Now()
	start := env.now()
	err := fn()

	task := models.TaskSettings{
		TaskName:      name,
		ExecutionMode: mode,
		StartDate:     start,
		EndDate:       env.now(),
		Status:        models.TaskOK,
	}
	if err != nil {
		task.Status = models.TaskError
		task.ErrorReason = err.Error()
	}
	if recErr := db.RecordTask(context.WithoutCancel(ctx), task); recErr != nil && err == nil {
		err = recErr
	}
	metrics.RecordTask(name, string(mode), time.Since(began), err)
	return err
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &config.ValidationError{Field: field, Value: v, Reason: "expected an RFC 3339 timestamp"}
	}
	return t.UTC(), nil
}
