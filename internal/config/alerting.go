// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"fmt"
	"slices"
	"strings"
)

// Supported alerters.
const (
	AlerterSlack       = "slack"
	AlerterTelegram    = "telegram"
	AlerterDiscord     = "discord"
	AlerterTeams       = "teams"
	AlerterGoogleChat  = "googlechat"
	AlerterRocketChat  = "rocketchat"
	AlerterMattermost  = "mattermost"
	AlerterPushover    = "pushover"
	AlerterHTTPRequest = "http_request"
	AlerterWebhooks    = "webhooks"
	AlerterEmail       = "email"
	AlerterDummy       = "dummy"
)

// SupportedAlerters lists the values accepted in active_alerters.
var SupportedAlerters = []string{
	AlerterSlack,
	AlerterTelegram,
	AlerterDiscord,
	AlerterTeams,
	AlerterGoogleChat,
	AlerterRocketChat,
	AlerterMattermost,
	AlerterPushover,
	AlerterHTTPRequest,
	AlerterWebhooks,
	AlerterEmail,
	AlerterDummy,
}

// AlertingConfig is the parsed alerting.json.
type AlertingConfig struct {
	ActiveAlerters []string

	file *jsonFile
}

// LoadAlerting reads dir/alerting.json and validates active_alerters.
// Channel sections are decoded on demand with Section.
func LoadAlerting(dir string) (*AlertingConfig, error) {
	f, err := loadJSONFile(dir, AlertingFile)
	if err != nil {
		return nil, err
	}

	active := splitList(f.k.Strings("active_alerters"))
	seen := make(map[string]struct{}, len(active))
	out := make([]string, 0, len(active))
	for _, name := range active {
		name = strings.ToLower(name)
		if !slices.Contains(SupportedAlerters, name) {
			return nil, configErrorf(AlertingFile, nil, "unsupported alerter %q (supported: %s)",
				name, strings.Join(SupportedAlerters, ", "))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return &AlertingConfig{ActiveAlerters: out, file: f}, nil
}

// Section decodes and validates the section of an active alerter into out,
// which should carry the defaults. The dummy alerter may omit its section.
func (c *AlertingConfig) Section(name string, out any) error {
	if c.file == nil {
		return configErrorf(AlertingFile, nil, "not loaded from a file")
	}
	if !c.file.hasSection(name) {
		if name == AlerterDummy {
			return nil
		}
		return configErrorf(AlertingFile, nil, "section %q is missing or empty", name)
	}
	return c.file.decodeSection(name, out)
}

// Marshal re-serializes the loaded file as JSON.
func (c *AlertingConfig) Marshal() ([]byte, error) {
	if c.file == nil {
		return nil, fmt.Errorf("alerting config was not loaded from a file")
	}
	return c.file.marshal()
}
