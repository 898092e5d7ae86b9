// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package commands

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/store"
)

func runClearModels(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "clear_models",
		"Empty one model. Without --model, empty every model except config.")
	model := fs.String("model", "", "one of "+strings.Join(store.Models, ", "))
	yes := fs.Bool("yes", false, "do not ask before clearing the config model")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}

	targets := []string{store.ModelAlert, store.ModelLogin, store.ModelUser, store.ModelTaskSettings}
	if *model != "" {
		name := strings.ToLower(strings.TrimSpace(*model))
		if !slices.Contains(store.Models, name) {
			return &config.ValidationError{Field: "model", Value: *model, Reason: "must be one of " + strings.Join(store.Models, ", ")}
		}
		if name == store.ModelConfig && !*yes && !confirm(env, "Are you sure you want to delete the configuration? [y/N] ") {
			fmt.Fprintln(env.Stdout, "Config model isn't emptied")
			return nil
		}
		targets = []string{name}
	}

	return env.withStore(ctx, func(db *store.DB) error {
		return track(ctx, env, db, models.TaskClearModels, mode, func() error {
			for _, m := range targets {
				n, err := db.Clear(ctx, m)
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Stdout, "Cleared %s: %d row(s)\n", m, n)
			}
			return nil
		})
	})
}

func confirm(env *Env, prompt string) bool {
	if env.Stdin == nil {
		return false
	}
	fmt.Fprint(env.Stdout, prompt)
	line, _ := bufio.NewReader(env.Stdin).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

func runResetRiskScore(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "reset_user_risk_score",
		"Set the risk score of one user, or of every user when --username is not given.")
	username := fs.String("username", "", "user to update (default all users)")
	riskRaw := fs.String("risk_score", string(models.RiskNone), "No risk, Low, Medium or High")
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}
	score, err := models.ParseRiskScore(*riskRaw)
	if err != nil {
		return &config.ValidationError{Field: "risk_score", Value: *riskRaw, Reason: err.Error()}
	}

	return env.withStore(ctx, func(db *store.DB) error {
		return track(ctx, env, db, models.TaskResetRisk, mode, func() error {
			n, err := db.ResetRiskScore(ctx, *username, score)
			if err != nil {
				return err
			}
			if *username != "" {
				fmt.Fprintf(env.Stdout, "Updated risk_score of user %q to %q\n", *username, score)
			} else {
				fmt.Fprintf(env.Stdout, "Updated risk_score of %d user(s) to %q\n", n, score)
			}
			return nil
		})
	})
}

// configFlags are the detection settings editable from the command line.
type configFlags struct {
	fs *flagSet

	ignoredUsers     listFlag
	enabledUsers     listFlag
	vipUsers         listFlag
	ignoredIPs       listFlag
	allowedCountries listFlag
	ignoredISPs      listFlag

	atypicalDays int
	distance     float64
	velocity     float64
}

func newConfigFlags(fs *flagSet) *configFlags {
	c := &configFlags{fs: fs}
	fs.Var(&c.ignoredUsers, "ignored_users", "comma separated users or regexes excluded from detection")
	fs.Var(&c.enabledUsers, "enabled_users", "comma separated users or regexes; when set only they are analyzed")
	fs.Var(&c.vipUsers, "vip_users", "comma separated VIP users or regexes")
	fs.Var(&c.ignoredIPs, "ignored_ips", "comma separated IPs or CIDR networks excluded from detection")
	fs.Var(&c.allowedCountries, "allowed_countries", "comma separated countries that never raise a country alert")
	fs.Var(&c.ignoredISPs, "ignored_isps", "comma separated ISPs excluded from detection")
	fs.IntVar(&c.atypicalDays, "atypical_country_days", 0, "days after which a country is atypical again")
	fs.Float64Var(&c.distance, "distance_accepted", 0, "distance in km below which travel is never impossible")
	fs.Float64Var(&c.velocity, "vel_accepted", 0, "maximum plausible speed in km/h")
	return c
}

// apply writes the given flags into cfg. Lists replace the current value
// when overwrite is set and are appended to otherwise. It returns the
// names of the changed fields.
func (c *configFlags) apply(cfg *models.Config, overwrite bool) []string {
	lists := []struct {
		flag   string
		values listFlag
		target *[]string
	}{
		{"ignored_users", c.ignoredUsers, &cfg.IgnoredUsers},
		{"enabled_users", c.enabledUsers, &cfg.EnabledUsers},
		{"vip_users", c.vipUsers, &cfg.VIPUsers},
		{"ignored_ips", c.ignoredIPs, &cfg.IgnoredIPs},
		{"allowed_countries", c.allowedCountries, &cfg.AllowedCountries},
		{"ignored_isps", c.ignoredISPs, &cfg.IgnoredISPs},
	}

	var changed []string
	for _, l := range lists {
		if !c.fs.isSet(l.flag) {
			continue
		}
		if overwrite {
			*l.target = slices.Clone([]string(l.values))
		} else {
			for _, v := range l.values {
				if !slices.Contains(*l.target, v) {
					*l.target = append(*l.target, v)
				}
			}
		}
		changed = append(changed, l.flag)
	}
	if c.fs.isSet("atypical_country_days") {
		cfg.AtypicalCountryDays = c.atypicalDays
		changed = append(changed, "atypical_country_days")
	}
	if c.fs.isSet("distance_accepted") {
		cfg.DistanceAccepted = c.distance
		changed = append(changed, "distance_accepted")
	}
	if c.fs.isSet("vel_accepted") {
		cfg.VelAccepted = c.velocity
		changed = append(changed, "vel_accepted")
	}
	return changed
}

func runSetupConfig(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "setup_config", "Create the detection configuration from the defaults and the given values.")
	flags := newConfigFlags(fs)
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}

	return env.withStore(ctx, func(db *store.DB) error {
		return track(ctx, env, db, models.TaskSetupConfig, mode, func() error {
			if _, found, err := db.LoadConfig(ctx); err != nil {
				return err
			} else if found {
				return usageErrorf("configuration already exists, use update_config or clear_models --model config")
			}
			cfg := models.DefaultConfig()
			flags.apply(&cfg, true)
			return saveConfig(ctx, env, db, cfg, nil)
		})
	})
}

func runUpdateConfig(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "update_config",
		"Update the detection configuration. List values are appended unless --overwrite is given.")
	overwrite := fs.Bool("overwrite", false, "replace list values instead of appending to them")
	flags := newConfigFlags(fs)
	mode, err := fs.parse(args)
	if err != nil {
		return err
	}

	return env.withStore(ctx, func(db *store.DB) error {
		return track(ctx, env, db, models.TaskUpdateConfig, mode, func() error {
			cfg, _, err := db.LoadConfig(ctx)
			if err != nil {
				return err
			}
			changed := flags.apply(&cfg, *overwrite)
			if len(changed) == 0 {
				return usageErrorf("nothing to update")
			}
			return saveConfig(ctx, env, db, cfg, changed)
		})
	})
}

// saveConfig validates cfg strictly, stores it and prints the changed
// fields, or every editable field when changed is nil.
func saveConfig(ctx context.Context, env *Env, db *store.DB, cfg models.Config, changed []string) error {
	clean, err := config.ValidateConfig(cfg)
	if err != nil {
		return err
	}
	if err := db.SaveConfig(ctx, clean); err != nil {
		return err
	}
	if changed == nil {
		changed = []string{"ignored_users", "enabled_users", "vip_users", "ignored_ips", "allowed_countries",
			"ignored_isps", "atypical_country_days", "distance_accepted", "vel_accepted"}
	}
	for _, name := range changed {
		fmt.Fprintf(env.Stdout, "%s: %s\n", name, configValue(clean, name))
	}
	return nil
}

func configValue(cfg models.Config, name string) string {
	switch name {
	case "ignored_users":
		return strings.Join(cfg.IgnoredUsers, ", ")
	case "enabled_users":
		return strings.Join(cfg.EnabledUsers, ", ")
	case "vip_users":
		return strings.Join(cfg.VIPUsers, ", ")
	case "ignored_ips":
		return strings.Join(cfg.IgnoredIPs, ", ")
	case "allowed_countries":
		return strings.Join(cfg.AllowedCountries, ", ")
	case "ignored_isps":
		return strings.Join(cfg.IgnoredISPs, ", ")
	case "atypical_country_days":
		return strconv.Itoa(cfg.AtypicalCountryDays)
	case "distance_accepted":
		return strconv.FormatFloat(cfg.DistanceAccepted, 'f', -1, 64)
	case "vel_accepted":
		return strconv.FormatFloat(cfg.VelAccepted, 'f', -1, 64)
	}
	return ""
}
