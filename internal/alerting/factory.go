// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"fmt"

	"github.com/tomtom215/buffalogs/internal/config"
)

// Build constructs the notifiers listed in active_alerters, in order.
// A missing or invalid section yields a *config.ConfigError.
func Build(cfg *config.AlertingConfig, f *Formatter) ([]Notifier, error) {
	notifiers := make([]Notifier, 0, len(cfg.ActiveAlerters))
	for _, name := range cfg.ActiveAlerters {
		n, err := build(cfg, name, f)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}

func build(cfg *config.AlertingConfig, name string, f *Formatter) (Notifier, error) {
	switch name {
	case config.AlerterSlack:
		var c slackConfig
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newSlack(c, f), nil

	case config.AlerterTelegram:
		var c telegramConfig
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newTelegram(c), nil

	case config.AlerterDiscord, config.AlerterTeams, config.AlerterGoogleChat:
		var c webhookConfig
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		switch name {
		case config.AlerterDiscord:
			return newDiscord(c), nil
		case config.AlerterTeams:
			return newTeams(c), nil
		default:
			return newGoogleChat(c), nil
		}

	case config.AlerterRocketChat:
		var c rocketChatConfig
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newRocketChat(c), nil

	case config.AlerterMattermost:
		var c mattermostConfig
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newMattermost(c), nil

	case config.AlerterPushover:
		var c pushoverConfig
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newPushover(c), nil

	case config.AlerterHTTPRequest:
		c := httpRequestConfig{Timeout: int(DefaultHTTPTimeout.Seconds())}
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newHTTPRequest(c), nil

	case config.AlerterWebhooks:
		c := webhooksConfig{
			httpRequestConfig:      httpRequestConfig{Timeout: int(DefaultHTTPTimeout.Seconds())},
			TokenExpirationSeconds: DefaultWebhookExpiration,
		}
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		n, err := newWebhook(c)
		if err != nil {
			return nil, err
		}
		return n, nil

	case config.AlerterEmail:
		c := defaultEmailConfig()
		if err := cfg.Section(name, &c); err != nil {
			return nil, err
		}
		return newEmail(c), nil

	case config.AlerterDummy:
		return DummyNotifier{}, nil
	}
	return nil, &config.ConfigError{Source: config.AlertingFile, Reason: fmt.Sprintf("unsupported alerter %q", name)}
}

// Load reads alerting.json from dir and builds its notifiers with the
// templates found in templateDir (embedded defaults when empty).
func Load(dir, templateDir string) ([]Notifier, *Formatter, error) {
	cfg, err := config.LoadAlerting(dir)
	if err != nil {
		return nil, nil, err
	}
	f, err := NewFormatter(templateDir)
	if err != nil {
		return nil, nil, err
	}
	notifiers, err := Build(cfg, f)
	if err != nil {
		return nil, nil, err
	}
	return notifiers, f, nil
}
