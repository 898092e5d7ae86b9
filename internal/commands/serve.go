// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package commands

import (
	"context"
	"time"

	"github.com/tomtom215/buffalogs/internal/alerting"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/server"
	"github.com/tomtom215/buffalogs/internal/store"
	"github.com/tomtom215/buffalogs/internal/supervisor"
	"github.com/tomtom215/buffalogs/internal/supervisor/services"
)

// summaryCheckInterval is how often serve checks whether a summary is due.
const summaryCheckInterval = time.Hour

func runServe(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "serve", "Run every task on its schedule until interrupted.")
	if _, err := fs.parse(args); err != nil {
		return err
	}
	cfg := env.Config

	return env.withStore(ctx, func(db *store.DB) error {
		anon, err := env.anonymizer(ctx)
		if err != nil {
			return err
		}
		// Fail fast on a broken alerting.json; runs reload it anyway.
		if _, err := env.dispatcher(db); err != nil {
			return err
		}
		orch := env.orchestrator(db, anon)

		tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

		tree.AddTask(services.NewTaskService(models.TaskProcessLogs, cfg.Pipeline.Interval,
			func(ctx context.Context) error {
				_, err := orch.ProcessLogs(ctx)
				return err
			}, services.WithRunOnStart()))

		tree.AddTask(services.NewTaskService(models.TaskNotifyAlerts, cfg.Notify.Interval,
			func(ctx context.Context) error {
				d, err := env.dispatcher(db)
				if err != nil {
					return err
				}
				_, err = d.NotifyAlerts(ctx, models.ModeAutomatic)
				return err
			}))

		tree.AddTask(services.NewTaskService(models.TaskCleanModels, cfg.Cleanup.Interval,
			func(ctx context.Context) error {
				_, err := orch.CleanModels(ctx, models.ModeAutomatic)
				return err
			}))

		if cfg.Summary.Enabled {
			tree.AddTask(services.NewTaskService(models.TaskAlertSummary, summaryCheckInterval,
				func(ctx context.Context) error {
					return sendDueSummary(ctx, env, db)
				}, services.WithRunOnStart()))
		}

		tree.AddTask(services.NewTaskService("anonymizer_refresh", anon.UpdateInterval(),
			func(ctx context.Context) error {
				updated, err := anon.Refresh(ctx)
				if updated {
					logging.Info().Int("networks", anon.Count()).Msg("Anonymizer lookup refreshed")
				}
				return err
			}))

		if cfg.Server.Enabled {
			handler := server.NewHandler(db, env.Version)
			tree.AddOps(services.NewHTTPServerService(server.New(cfg.Server, handler.Router()), 0))
			logging.Info().Str("addr", cfg.Server.Addr).Msg("Serving /metrics and /healthz")
		}

		logging.Info().
			Dur("pipeline_interval", cfg.Pipeline.Interval).
			Dur("notify_interval", cfg.Notify.Interval).
			Bool("summary", cfg.Summary.Enabled).
			Msg("BuffaLogs started")

		err = tree.Serve(ctx)
		if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
			logging.Warn().Int("count", len(report)).Msg("Services did not stop before the shutdown timeout")
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
		logging.Info().Msg("BuffaLogs stopped")
		return nil
	})
}

// sendDueSummary sends the summary of the last complete period unless an
// automatic run already covered it.
func sendDueSummary(ctx context.Context, env *Env, db *store.DB) error {
	start, end, err := alerting.SummaryWindow(env.Config.Summary.Period, env.now())
	if err != nil {
		return err
	}
	last, err := db.GetTask(ctx, models.TaskAlertSummary, models.ModeAutomatic)
	switch {
	case err == nil:
		if last.Status == models.TaskOK && !last.EndDate.Before(end) {
			return nil
		}
	case !store.IsNotFound(err):
		return err
	}

	d, err := env.dispatcher(db)
	if err != nil {
		return err
	}
	_, err = d.SendSummary(ctx, models.ModeAutomatic, start, end)
	return err
}
