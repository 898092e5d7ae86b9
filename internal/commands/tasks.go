// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package commands

import (
	"context"
	"fmt"

	"github.com/tomtom215/buffalogs/internal/alerting"
	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/ingestion"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/pipeline"
	"github.com/tomtom215/buffalogs/internal/store"
	"github.com/tomtom215/buffalogs/internal/vpn"
)

// anonymizer builds the VPN/proxy/Tor lookup and loads its sources.
func (e *Env) anonymizer(ctx context.Context) (*vpn.Service, error) {
	svc, err := vpn.NewService(e.Config.Anonymizer)
	if err != nil {
		return nil, &config.ConfigError{Source: "anonymizer", Reason: "invalid configuration", Err: err}
	}
	if err := svc.Load(ctx); err != nil {
		return nil, &config.ConfigError{Source: "anonymizer", Reason: "cannot load networks", Err: err}
	}
	logging.Debug().Int("networks", svc.Count()).Msg("Anonymizer lookup loaded")
	return svc, nil
}

func (e *Env) sourceFunc() pipeline.SourceFunc {
	if e.Source != nil {
		return e.Source
	}
	dir := e.Config.ConfigDir
	return func(ctx context.Context) (ingestion.Source, error) {
		return ingestion.FromDir(ctx, dir)
	}
}

func (e *Env) orchestrator(db *store.DB, anon *vpn.Service) *pipeline.Orchestrator {
	opts := []pipeline.Option{}
	if anon != nil {
		opts = append(opts, pipeline.WithAnonymizer(anon))
	}
	if e.Now != nil {
		opts = append(opts, pipeline.WithClock(e.now, nil))
	}
	return pipeline.New(db, e.sourceFunc(), e.Config.Pipeline, opts...)
}

// dispatcher reads alerting.json; it is rebuilt per run so that edits
// apply without a restart.
func (e *Env) dispatcher(db *store.DB) (*alerting.Dispatcher, error) {
	notifiers, f, err := alerting.Load(e.Config.ConfigDir, e.Config.Notify.TemplateDir)
	if err != nil {
		return nil, err
	}
	var opts []alerting.Option
	if e.Now != nil {
		opts = append(opts, alerting.WithClock(e.now, nil))
	}
	return alerting.NewDispatcher(db, notifiers, f, e.Config.Notify, opts...)
}

func runImpossibleTravel(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "impossible_travel",
		"Process the window [--start, --end). Without a range, process the windows pending since the last automatic run;\n"+
			"those runs are always recorded as automatic.")
	startRaw := fs.String("start", "", "window start, RFC 3339")
	endRaw := fs.String("end", "", "window end, RFC 3339")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}
	if (*startRaw == "") != (*endRaw == "") {
		return usageErrorf("--start and --end must be given together")
	}
	if *startRaw == "" && fs.isSet("execution_mode") && mode != models.ModeAutomatic {
		return usageErrorf("--execution_mode %s needs --start and --end", mode)
	}

	return env.withStore(ctx, func(db *store.DB) error {
		anon, err := env.anonymizer(ctx)
		if err != nil {
			return err
		}
		orch := env.orchestrator(db, anon)

		var rep *pipeline.Report
		if *startRaw == "" {
			rep, err = orch.ProcessLogs(ctx)
		} else {
			start, perr := parseTime("start", *startRaw)
			if perr != nil {
				return perr
			}
			end, perr := parseTime("end", *endRaw)
			if perr != nil {
				return perr
			}
			rep, err = orch.RunWindow(ctx, mode, start, end)
		}
		if rep != nil {
			fmt.Fprintf(env.Stdout, "Processed %d window(s): %d users, %d logins, %d alerts, %d duplicates, %d ignored\n",
				rep.Windows, rep.Users, rep.Logins, rep.Alerts, rep.Duplicates, rep.Ignored)
		}
		return err
	})
}

func runNotifyAlerts(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "notify_alerts", "Send every pending alert on every channel of alerting.json.")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}
	return env.withStore(ctx, func(db *store.DB) error {
		d, err := env.dispatcher(db)
		if err != nil {
			return err
		}
		rep, err := d.NotifyAlerts(ctx, mode)
		if rep != nil {
			fmt.Fprintf(env.Stdout, "Sent %d message(s) on %d channel(s): %d delivered, %d failed\n",
				rep.Messages, len(d.Notifiers()), rep.Delivered, rep.Failed)
		}
		return err
	})
}

func runSummary(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "summary", "Send the summary of the last complete day or week.")
	period := fs.String("period", env.Config.Summary.Period, "daily or weekly")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}
	start, end, err := alerting.SummaryWindow(*period, env.now())
	if err != nil {
		return err
	}
	return env.withStore(ctx, func(db *store.DB) error {
		d, err := env.dispatcher(db)
		if err != nil {
			return err
		}
		s, err := d.SendSummary(ctx, mode, start, end)
		fmt.Fprintf(env.Stdout, "Summary %s - %s: %d alert(s), %d filtered\n",
			start.Format("2006-01-02"), end.Format("2006-01-02"), s.Total, s.Filtered)
		return err
	})
}

func runCleanModels(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "clean_models", "Delete users, logins and alerts not updated within their retention.")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}
	return env.withStore(ctx, func(db *store.DB) error {
		res, err := env.orchestrator(db, nil).CleanModels(ctx, mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "Deleted %d user(s), %d login(s), %d alert(s)\n", res.Users, res.Logins, res.Alerts)
		return nil
	})
}

func runUpdateRiskLevel(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "update_risk_level", "Recompute the risk score of the given users, or of every user.")
	var users listFlag
	fs.Var(&users, "username", "comma separated usernames (default all)")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}
	return env.withStore(ctx, func(db *store.DB) error {
		return track(ctx, env, db, models.TaskUpdateRisk, mode, func() error {
			if err := env.orchestrator(db, nil).UpdateRiskLevel(ctx, users...); err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, "Risk scores updated")
			return nil
		})
	})
}
