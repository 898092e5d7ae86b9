// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"fmt"

	"github.com/tomtom215/buffalogs/internal/models"
)

// RiskUpdate is the result of recomputing a user's risk band.
type RiskUpdate struct {
	Previous models.RiskScore
	Current  models.RiskScore
	Count    int
}

// ComputeRisk maps count, the number of risk-raising alerts inside the
// horizon, to a band. The result depends on nothing else.
func ComputeRisk(user *models.User, count int) RiskUpdate {
	prev := user.RiskScore
	if prev == "" {
		prev = models.RiskNone
	}
	return RiskUpdate{Previous: prev, Current: models.RiskScoreFromCount(count), Count: count}
}

// Raised reports whether the band went up.
func (u RiskUpdate) Raised() bool {
	return u.Current.Rank() > u.Previous.Rank()
}

// Changed reports whether the stored band must be written.
func (u RiskUpdate) Changed() bool {
	return u.Current != u.Previous
}

// ThresholdAlert returns a User Risk Threshold alert when the band went up
// and reached threshold_user_risk_alert, otherwise nil. raw is the
// login_raw_data of the alert that triggered the update and may be nil.
// The returned alert is filtered against the user's new band.
func ThresholdAlert(user *models.User, u RiskUpdate, s *Settings, raw map[string]any) *models.Alert {
	if !u.Raised() || !u.Current.AtLeast(s.Config.ThresholdUserRiskAlert) {
		return nil
	}
	alert := newAlert(user, models.AlertUserRiskThreshold, fmt.Sprintf(
		"User risk higher than threshold for User: %s, who changed risk_score from %s to %s",
		user.Username, u.Previous, u.Current))
	if raw == nil {
		raw = map[string]any{}
	}
	alert.LoginRawData = raw
	alert.IsVIP = s.IsVIP(user.Username)

	scored := *user
	scored.RiskScore = u.Current
	Filter(alert, &scored, s)
	return alert
}
