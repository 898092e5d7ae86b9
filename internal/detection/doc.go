// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package detection evaluates login events against a user's login history
// and produces alerts.
//
// Detection Architecture:
//
//	LoginEvent + History -> Engine -> []*models.Alert -> Filter -> store
//	                          |
//	                          v
//	                     Detectors (ordered)
//
// Detectors are pure: they read the user, the new event, the history of
// strictly earlier successful logins and the compiled Settings, and return
// at most one alert. They never fail and never touch storage; the pipeline
// persists the login and its alerts together.
//
// Supported detectors, in evaluation order:
//   - Impossible Travel: two logins whose distance cannot be covered in the
//     elapsed time at vel_accepted km/h
//   - New Device: neither the user agent nor its device fingerprint was
//     seen before
//   - New Country: first login from a country
//   - Atypical Country: a known country that has not been seen for
//     atypical_country_days days
//   - Anonymous IP: the address belongs to a VPN, proxy or Tor network
//
// Countries listed in allowed_countries skip the geographic detectors.
//
// After creation every alert is passed through Filter, which records the
// reasons (filter types) that keep it from being notified. Risk bands are
// recomputed by RiskUpdate once a window has been processed.
package detection
