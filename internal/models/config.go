// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package models

import "time"

// Config is the detection configuration record. There is exactly one per
// deployment; the pipeline loads it at the start of every task.
type Config struct {
	IgnoredUsers     []string `json:"ignored_users"`
	EnabledUsers     []string `json:"enabled_users"`
	VIPUsers         []string `json:"vip_users"`
	AlertIsVIPOnly   bool     `json:"alert_is_vip_only"`
	IgnoredIPs       []string `json:"ignored_ips"`
	AllowedCountries []string `json:"allowed_countries"`
	IgnoredISPs      []string `json:"ignored_ISPs"`

	AlertMinimumRiskScore    RiskScore   `json:"alert_minimum_risk_score"`
	ThresholdUserRiskAlert   RiskScore   `json:"threshold_user_risk_alert"`
	RiskScoreIncrementAlerts []AlertName `json:"risk_score_increment_alerts"`
	FilteredAlertsTypes      []AlertName `json:"filtered_alerts_types"`
	IgnoreMobileLogins       bool        `json:"ignore_mobile_logins"`

	DistanceAccepted                 float64     `json:"distance_accepted"`
	VelAccepted                      float64     `json:"vel_accepted"`
	AtypicalCountryDays              int         `json:"atypical_country_days"`
	IgnoredImpTravelAllSameCountry   bool        `json:"ignored_impossible_travel_all_same_country"`
	IgnoredImpTravelCountriesCouples [][2]string `json:"ignored_impossible_travel_countries_couples"`
	VIPTravelAlwaysAlert             bool        `json:"vip_travel_always_alert"`

	UserMaxDays     int `json:"user_max_days"`
	LoginMaxDays    int `json:"login_max_days"`
	AlertMaxDays    int `json:"alert_max_days"`
	IPMaxDays       int `json:"ip_max_days"`
	RiskHorizonDays int `json:"risk_horizon_days"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultConfig returns the configuration used until an operator changes it.
func DefaultConfig() Config {
	return Config{
		IgnoredUsers:                     []string{},
		EnabledUsers:                     []string{},
		VIPUsers:                         []string{},
		IgnoredIPs:                       []string{},
		AllowedCountries:                 []string{},
		IgnoredISPs:                      []string{},
		AlertMinimumRiskScore:            RiskMedium,
		ThresholdUserRiskAlert:           RiskMedium,
		RiskScoreIncrementAlerts:         []AlertName{AlertNewDevice, AlertImpossibleTravel},
		FilteredAlertsTypes:              []AlertName{},
		IgnoreMobileLogins:               true,
		DistanceAccepted:                 100,
		VelAccepted:                      300,
		AtypicalCountryDays:              30,
		IgnoredImpTravelAllSameCountry:   true,
		IgnoredImpTravelCountriesCouples: [][2]string{},
		UserMaxDays:                      365,
		LoginMaxDays:                     365,
		AlertMaxDays:                     365,
		IPMaxDays:                        45,
		RiskHorizonDays:                  365,
	}
}
