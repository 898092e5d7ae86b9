// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/vpn"
)

// Detector evaluates one login for one kind of anomaly.
type Detector interface {
	// Type returns the alert name the detector produces.
	Type() models.AlertName

	// Check returns an alert or nil. It must not modify its arguments.
	Check(user *models.User, event *models.LoginEvent, history *History, s *Settings) *models.Alert
}

// geographic marks detectors suppressed for allowed countries.
type geographic interface {
	geographic()
}

// AnonymizerLookup resolves addresses against known VPN, proxy and Tor
// networks. *vpn.Service implements it.
type AnonymizerLookup interface {
	LookupIP(ip string) vpn.LookupResult
}

// Settings is the read-only input shared by every detector during a task.
type Settings struct {
	*config.Rules

	// Anonymizer may be nil, in which case only the source's
	// intelligence category marks an anonymous login.
	Anonymizer AnonymizerLookup
}

// NewSettings binds compiled rules and an optional anonymizer lookup.
func NewSettings(rules *config.Rules, anon AnonymizerLookup) *Settings {
	return &Settings{Rules: rules, Anonymizer: anon}
}

// newAlert builds an alert for user with the fields every detector sets.
func newAlert(user *models.User, name models.AlertName, description string) *models.Alert {
	return &models.Alert{
		UserID:      user.ID,
		Username:    user.Username,
		Name:        name,
		Description: description,
	}
}
