// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package models

import (
	"fmt"
	"time"
)

// AlertName identifies the detector that produced an alert.
type AlertName string

const (
	AlertImpossibleTravel  AlertName = "Imp Travel"
	AlertNewDevice         AlertName = "New Device"
	AlertNewCountry        AlertName = "New Country"
	AlertAtypicalCountry   AlertName = "Atypical Country"
	AlertAnonymousIP       AlertName = "Anonymous IP Login"
	AlertUserRiskThreshold AlertName = "User Risk Threshold"
)

// AlertNames lists every alert type.
var AlertNames = []AlertName{
	AlertImpossibleTravel,
	AlertNewDevice,
	AlertNewCountry,
	AlertAtypicalCountry,
	AlertAnonymousIP,
	AlertUserRiskThreshold,
}

// ParseAlertName validates an alert type name.
func ParseAlertName(s string) (AlertName, error) {
	for _, n := range AlertNames {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown alert name %q", s)
}

// FilterType records why an alert was withheld from notification.
type FilterType string

const (
	FilterIgnoredUsers       FilterType = "ignored_users filter"
	FilterIgnoredIPs         FilterType = "ignored_ips filter"
	FilterAllowedCountries   FilterType = "allowed_countries filter"
	FilterVIPOnly            FilterType = "is_vip_filter"
	FilterMinimumRiskScore   FilterType = "alert_minimum_risk_score filter"
	FilterAlertTypes         FilterType = "filtered_alerts_types filter"
	FilterIgnoreMobileLogins FilterType = "ignore_mobile_logins filter"
	FilterIgnoredISPs        FilterType = "ignored_ISPs filter"
)

// Alert is a detection result for one login.
type Alert struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Username       string          `json:"username"`
	LoginID        *int64          `json:"login_id,omitempty"`
	Name           AlertName       `json:"name"`
	Description    string          `json:"description"`
	LoginRawData   map[string]any  `json:"login_raw_data"`
	IsVIP          bool            `json:"is_vip"`
	IsFiltered     bool            `json:"is_filtered"`
	FilterType     []FilterType    `json:"filter_type"`
	NotifiedStatus map[string]bool `json:"notified_status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Notified reports whether the alert was delivered on channel.
func (a *Alert) Notified(channel string) bool {
	return a.NotifiedStatus[channel]
}

// AddFilter appends ft once and keeps IsFiltered in sync.
func (a *Alert) AddFilter(ft FilterType) {
	for _, existing := range a.FilterType {
		if existing == ft {
			return
		}
	}
	a.FilterType = append(a.FilterType, ft)
	a.IsFiltered = true
}
