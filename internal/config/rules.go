// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/models"
)

// Matcher matches usernames against literal entries and regular expressions.
// Every entry is tried as a literal first, then as an anchored pattern.
type Matcher struct {
	literals map[string]struct{}
	patterns []*regexp.Regexp
}

// NewMatcher compiles entries. An entry that is not a valid regular
// expression is a *ValidationError.
func NewMatcher(field string, entries []string) (*Matcher, error) {
	m := &Matcher{literals: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		m.literals[strings.ToLower(e)] = struct{}{}
		re, err := regexp.Compile("^(?:" + e + ")$")
		if err != nil {
			return nil, &ValidationError{Field: field, Value: e, Reason: "not a valid regular expression"}
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether s matches any entry.
func (m *Matcher) Match(s string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.literals[strings.ToLower(s)]; ok {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher has no entries.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.literals) == 0
}

// IPMatcher matches addresses against literal IPs and CIDR prefixes.
type IPMatcher struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NewIPMatcher parses entries; anything that is neither an IP nor a CIDR
// is a *ValidationError.
func NewIPMatcher(field string, entries []string) (*IPMatcher, error) {
	m := &IPMatcher{addrs: make(map[netip.Addr]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if addr, err := netip.ParseAddr(e); err == nil {
			m.addrs[addr.Unmap()] = struct{}{}
			continue
		}
		p, err := netip.ParsePrefix(e)
		if err != nil {
			return nil, &ValidationError{Field: field, Value: e, Reason: "not an IP address or CIDR network"}
		}
		m.prefixes = append(m.prefixes, p.Masked())
	}
	return m, nil
}

// Contains reports whether ip is listed or inside a listed network.
// Unparseable input never matches.
func (m *IPMatcher) Contains(ip string) bool {
	if m == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if _, ok := m.addrs[addr]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (m *IPMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.addrs) + len(m.prefixes)
}

// Rules is a compiled, read-only view of models.Config used for one task.
type Rules struct {
	Config models.Config

	IgnoredUsers *Matcher
	EnabledUsers *Matcher
	VIPUsers     *Matcher
	IgnoredIPs   *IPMatcher

	allowedCountries map[string]struct{}
	ignoredISPs      map[string]struct{}
	countryCouples   map[[2]string]struct{}
	riskIncrement    map[models.AlertName]struct{}
	filteredAlerts   map[models.AlertName]struct{}
}

// CompileConfig compiles cfg for detection. Invalid patterns, IPs and enum
// values are fatal; unknown countries are dropped with a warning.
func CompileConfig(cfg models.Config) (*Rules, error) {
	return compile(cfg, false)
}

// ValidateConfig is the strict form used before a Config is saved: unknown
// countries are rejected too. It returns the cleaned config.
func ValidateConfig(cfg models.Config) (models.Config, error) {
	r, err := compile(cfg, true)
	if err != nil {
		return cfg, err
	}
	return r.Config, nil
}

func compile(cfg models.Config, strict bool) (*Rules, error) {
	countries, err := BundledCountries()
	if err != nil {
		return nil, err
	}

	r := &Rules{}
	if r.IgnoredUsers, err = NewMatcher("ignored_users", cfg.IgnoredUsers); err != nil {
		return nil, err
	}
	if r.EnabledUsers, err = NewMatcher("enabled_users", cfg.EnabledUsers); err != nil {
		return nil, err
	}
	if r.VIPUsers, err = NewMatcher("vip_users", cfg.VIPUsers); err != nil {
		return nil, err
	}
	if r.IgnoredIPs, err = NewIPMatcher("ignored_ips", cfg.IgnoredIPs); err != nil {
		return nil, err
	}

	if err := validateEnums(&cfg); err != nil {
		return nil, err
	}
	if err := validateNumbers(&cfg); err != nil {
		return nil, err
	}

	clean, invalid := countries.CleanCountries(cfg.AllowedCountries)
	if len(invalid) > 0 {
		if strict {
			return nil, &ValidationError{Field: "allowed_countries", Value: strings.Join(invalid, ", "), Reason: "not in the supported countries list"}
		}
		logging.Warn().Strs("dropped", invalid).Msg("allowed_countries contains unknown countries")
	}
	cfg.AllowedCountries = clean
	r.allowedCountries = toSet(clean)

	couples := make([][2]string, 0, len(cfg.IgnoredImpTravelCountriesCouples))
	r.countryCouples = make(map[[2]string]struct{}, len(couples))
	for _, pair := range cfg.IgnoredImpTravelCountriesCouples {
		a, okA := countries.Canonical(pair[0])
		b, okB := countries.Canonical(pair[1])
		if !okA || !okB {
			if strict {
				return nil, &ValidationError{Field: "ignored_impossible_travel_countries_couples", Value: pair[0] + "/" + pair[1], Reason: "not in the supported countries list"}
			}
			logging.Warn().Str("first", pair[0]).Str("second", pair[1]).Msg("ignoring country couple with unknown countries")
			continue
		}
		couples = append(couples, [2]string{a, b})
		r.countryCouples[[2]string{a, b}] = struct{}{}
	}
	cfg.IgnoredImpTravelCountriesCouples = couples

	r.ignoredISPs = make(map[string]struct{}, len(cfg.IgnoredISPs))
	for _, isp := range cfg.IgnoredISPs {
		if isp = strings.ToLower(strings.TrimSpace(isp)); isp != "" {
			r.ignoredISPs[isp] = struct{}{}
		}
	}
	r.riskIncrement = alertSet(cfg.RiskScoreIncrementAlerts)
	r.filteredAlerts = alertSet(cfg.FilteredAlertsTypes)
	r.Config = cfg
	return r, nil
}

func validateEnums(cfg *models.Config) error {
	for field, v := range map[string]*models.RiskScore{
		"alert_minimum_risk_score":  &cfg.AlertMinimumRiskScore,
		"threshold_user_risk_alert": &cfg.ThresholdUserRiskAlert,
	} {
		rs, err := models.ParseRiskScore(string(*v))
		if err != nil {
			return &ValidationError{Field: field, Value: string(*v), Reason: "not a risk score"}
		}
		*v = rs
	}
	for field, names := range map[string][]models.AlertName{
		"risk_score_increment_alerts": cfg.RiskScoreIncrementAlerts,
		"filtered_alerts_types":       cfg.FilteredAlertsTypes,
	} {
		for _, n := range names {
			if _, err := models.ParseAlertName(string(n)); err != nil {
				return &ValidationError{Field: field, Value: string(n), Reason: "not an alert type"}
			}
		}
	}
	return nil
}

func validateNumbers(cfg *models.Config) error {
	checks := []struct {
		field string
		value float64
	}{
		{"distance_accepted", cfg.DistanceAccepted},
		{"vel_accepted", cfg.VelAccepted},
		{"atypical_country_days", float64(cfg.AtypicalCountryDays)},
		{"user_max_days", float64(cfg.UserMaxDays)},
		{"login_max_days", float64(cfg.LoginMaxDays)},
		{"alert_max_days", float64(cfg.AlertMaxDays)},
		{"ip_max_days", float64(cfg.IPMaxDays)},
		{"risk_horizon_days", float64(cfg.RiskHorizonDays)},
	}
	for _, c := range checks {
		if c.value < 0 {
			return &ValidationError{Field: c.field, Value: fmt.Sprint(c.value), Reason: "must not be negative"}
		}
	}
	return nil
}

// IsAllowedCountry reports whether logins from country skip geographic detection.
func (r *Rules) IsAllowedCountry(country string) bool {
	_, ok := r.allowedCountries[country]
	return ok
}

// IsIgnoredISP reports whether isp is listed in ignored_ISPs.
func (r *Rules) IsIgnoredISP(isp string) bool {
	_, ok := r.ignoredISPs[strings.ToLower(strings.TrimSpace(isp))]
	return ok && isp != ""
}

// IsIgnoredCountryCouple reports whether travel from -> to (either order) is excluded.
func (r *Rules) IsIgnoredCountryCouple(from, to string) bool {
	if _, ok := r.countryCouples[[2]string{from, to}]; ok {
		return true
	}
	_, ok := r.countryCouples[[2]string{to, from}]
	return ok
}

// RaisesRisk reports whether alerts of this type count toward the risk score.
func (r *Rules) RaisesRisk(name models.AlertName) bool {
	_, ok := r.riskIncrement[name]
	return ok
}

// RiskIncrementAlerts returns the alert types that raise the risk score.
func (r *Rules) RiskIncrementAlerts() []models.AlertName {
	return r.Config.RiskScoreIncrementAlerts
}

// IsFilteredAlertType reports whether alerts of this type are never notified.
func (r *Rules) IsFilteredAlertType(name models.AlertName) bool {
	_, ok := r.filteredAlerts[name]
	return ok
}

// IsVIP reports whether username is a VIP user.
func (r *Rules) IsVIP(username string) bool {
	return r.VIPUsers.Match(username)
}

// IsIgnoredUser applies enabled_users (when non-empty) or ignored_users.
func (r *Rules) IsIgnoredUser(username string) bool {
	if !r.EnabledUsers.Empty() {
		return !r.EnabledUsers.Match(username)
	}
	return r.IgnoredUsers.Match(username)
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}
	return out
}

func alertSet(in []models.AlertName) map[models.AlertName]struct{} {
	out := make(map[models.AlertName]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}
	return out
}
