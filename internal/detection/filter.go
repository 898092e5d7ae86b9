// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"github.com/tomtom215/buffalogs/internal/models"
)

// Filter records on alert every reason that keeps it from being notified.
// Filtered alerts are stored but never sent.
//
// With alert_is_vip_only only VIP users are notified and the user lists
// are not consulted. Otherwise a non-empty enabled_users list replaces
// ignored_users.
func Filter(alert *models.Alert, user *models.User, s *Settings) {
	cfg := s.Config

	if cfg.AlertIsVIPOnly {
		if !s.IsVIP(user.Username) {
			alert.AddFilter(models.FilterVIPOnly)
		}
	} else if s.IsIgnoredUser(user.Username) {
		alert.AddFilter(models.FilterIgnoredUsers)
	}

	if minimum := cfg.AlertMinimumRiskScore; minimum != "" && !user.RiskScore.AtLeast(minimum) {
		alert.AddFilter(models.FilterMinimumRiskScore)
	}

	if ip := rawString(alert.LoginRawData, "ip"); ip != "" && s.IgnoredIPs.Contains(ip) {
		alert.AddFilter(models.FilterIgnoredIPs)
	}
	if country := rawString(alert.LoginRawData, "country"); country != "" && s.IsAllowedCountry(country) {
		alert.AddFilter(models.FilterAllowedCountries)
	}
	if s.IsFilteredAlertType(alert.Name) {
		alert.AddFilter(models.FilterAlertTypes)
	}
	if cfg.IgnoreMobileLogins {
		if agent := rawString(alert.LoginRawData, "agent"); agent != "" && FingerprintDevice(Fingerprint(agent)) == DeviceMobile {
			alert.AddFilter(models.FilterIgnoreMobileLogins)
		}
	}
	if isp := rawString(alert.LoginRawData, "organization"); s.IsIgnoredISP(isp) {
		alert.AddFilter(models.FilterIgnoredISPs)
	}
}

func rawString(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
