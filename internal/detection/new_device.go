// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"fmt"
	"time"

	"github.com/tomtom215/buffalogs/internal/models"
)

// NewDeviceDetector flags logins from a user agent, and a device
// fingerprint, the user has not used before.
type NewDeviceDetector struct{}

// Type returns the alert name.
func (NewDeviceDetector) Type() models.AlertName {
	return models.AlertNewDevice
}

// Check returns an alert unless the user agent or its fingerprint appears
// in the history. Unknown fingerprints never alert.
func (NewDeviceDetector) Check(user *models.User, event *models.LoginEvent, history *History, _ *Settings) *models.Alert {
	fp := Fingerprint(event.UserAgent)
	if fp == UnknownFingerprint {
		return nil
	}
	if history.SeenDevice(event.UserAgent, fp, event.Timestamp) {
		return nil
	}
	return newAlert(user, models.AlertNewDevice, fmt.Sprintf(
		"Login from new device for User: %s, at: %s",
		user.Username, event.Timestamp.UTC().Format(time.RFC3339)))
}
