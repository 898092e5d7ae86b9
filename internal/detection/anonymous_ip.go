// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"fmt"

	"github.com/tomtom215/buffalogs/internal/models"
)

// IntelligenceAnonymizer is the intelligence category sources attach to
// anonymizing networks.
const IntelligenceAnonymizer = "anonymizer"

// AnonymousIPDetector flags logins from VPN, proxy and Tor networks.
type AnonymousIPDetector struct{}

// Type returns the alert name.
func (AnonymousIPDetector) Type() models.AlertName {
	return models.AlertAnonymousIP
}

// Check consults the anonymizer lookup, then the source's own intelligence
// category.
func (AnonymousIPDetector) Check(user *models.User, event *models.LoginEvent, _ *History, s *Settings) *models.Alert {
	if event.IP == "" {
		return nil
	}
	provider := ""
	anonymous := event.IntelligenceCategory == IntelligenceAnonymizer
	if s.Anonymizer != nil {
		if res := s.Anonymizer.LookupIP(event.IP); res.Anonymous {
			anonymous = true
			provider = res.Provider
		}
	}
	if !anonymous {
		return nil
	}

	desc := fmt.Sprintf("Login from an anonymizer IP from IP: %s by User: %s", event.IP, user.Username)
	if provider != "" {
		desc += fmt.Sprintf(" (provider: %s)", provider)
	}
	return newAlert(user, models.AlertAnonymousIP, desc)
}
