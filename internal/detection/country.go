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

// NewCountryDetector flags the first login from a country.
type NewCountryDetector struct{}

// Type returns the alert name.
func (NewCountryDetector) Type() models.AlertName {
	return models.AlertNewCountry
}

func (NewCountryDetector) geographic() {}

// Check alerts when the country is known and absent from the history.
func (NewCountryDetector) Check(user *models.User, event *models.LoginEvent, history *History, _ *Settings) *models.Alert {
	if event.Country == "" || history.LastFromCountry(event.Country, event.Timestamp) != nil {
		return nil
	}
	return newAlert(user, models.AlertNewCountry, fmt.Sprintf(
		"Login from new country for User: %s, at: %s, from: %s",
		user.Username, event.Timestamp.UTC().Format(time.RFC3339), event.Country))
}

// AtypicalCountryDetector flags a return to a country after at least
// atypical_country_days days. A value of 0 disables it.
type AtypicalCountryDetector struct{}

// Type returns the alert name.
func (AtypicalCountryDetector) Type() models.AlertName {
	return models.AlertAtypicalCountry
}

func (AtypicalCountryDetector) geographic() {}

// Check measures whole days since the last login from the same country.
// A country with no earlier login is New Country territory and is ignored.
func (AtypicalCountryDetector) Check(user *models.User, event *models.LoginEvent, history *History, s *Settings) *models.Alert {
	days := s.Config.AtypicalCountryDays
	if event.Country == "" || days <= 0 {
		return nil
	}
	last := history.LastFromCountry(event.Country, event.Timestamp)
	if last == nil {
		return nil
	}
	if elapsedDays(last.Timestamp, event.Timestamp) < days {
		return nil
	}
	return newAlert(user, models.AlertAtypicalCountry, fmt.Sprintf(
		"Login from an atypical country for User: %s, at: %s, from: %s",
		user.Username, event.Timestamp.UTC().Format(time.RFC3339), event.Country))
}

// elapsedDays counts whole 24h periods from a to b.
func elapsedDays(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
