// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
)

// Engine runs detectors in a fixed order.
type Engine struct {
	detectors []Detector
}

// DefaultDetectors returns the detectors in evaluation order.
func DefaultDetectors() []Detector {
	return []Detector{
		ImpossibleTravelDetector{},
		NewDeviceDetector{},
		NewCountryDetector{},
		AtypicalCountryDetector{},
		AnonymousIPDetector{},
	}
}

// NewEngine creates an engine. Without arguments it uses DefaultDetectors.
func NewEngine(detectors ...Detector) *Engine {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	for _, d := range detectors {
		logging.Debug().Str("detector", string(d.Type())).Msg("registered detector")
	}
	return &Engine{detectors: detectors}
}

// Evaluate runs every detector on a successful login. All returned alerts
// share one login_raw_data map; IsVIP and the filter types are set.
// Failed logins produce no alerts. Alerts are filtered against the stored
// risk band of user.
func (e *Engine) Evaluate(user *models.User, event *models.LoginEvent, history *History, s *Settings) []*models.Alert {
	return e.evaluate(user, event, history, s, nil)
}

// EvaluateWithRisk is Evaluate with a running count of risk-raising
// alerts. Each alert that raises the risk increments *risk before it is
// filtered, and every alert is filtered against the band of the count at
// that point, so the alert that lifts a user over
// alert_minimum_risk_score is already notified.
func (e *Engine) EvaluateWithRisk(user *models.User, event *models.LoginEvent, history *History, s *Settings, risk *int) []*models.Alert {
	return e.evaluate(user, event, history, s, risk)
}

func (e *Engine) evaluate(user *models.User, event *models.LoginEvent, history *History, s *Settings, risk *int) []*models.Alert {
	if event.Status != models.LoginSuccess {
		return nil
	}

	allowed := event.Country != "" && s.IsAllowedCountry(event.Country)
	raw := event.RawData()
	var alerts []*models.Alert
	fired := make(map[models.AlertName]bool, len(e.detectors))

	for _, d := range e.detectors {
		name := d.Type()
		if _, geo := d.(geographic); geo && allowed {
			metrics.DetectorChecks.WithLabelValues(string(name), "suppressed").Inc()
			continue
		}
		if name == models.AlertAtypicalCountry && fired[models.AlertNewCountry] {
			metrics.DetectorChecks.WithLabelValues(string(name), "suppressed").Inc()
			continue
		}

		alert := d.Check(user, event, history, s)
		if alert == nil {
			metrics.DetectorChecks.WithLabelValues(string(name), "none").Inc()
			continue
		}
		metrics.DetectorChecks.WithLabelValues(string(name), "alert").Inc()
		fired[name] = true
		for k, v := range alert.LoginRawData {
			raw[k] = v
		}
		alerts = append(alerts, alert)
	}

	scored := *user
	for _, a := range alerts {
		a.LoginRawData = raw
		a.IsVIP = s.IsVIP(user.Username)
		if risk != nil {
			if s.RaisesRisk(a.Name) {
				*risk++
			}
			scored.RiskScore = models.RiskScoreFromCount(*risk)
		}
		Filter(a, &scored, s)
		logging.Info().
			Str("username", user.Username).
			Str("alert", string(a.Name)).
			Bool("filtered", a.IsFiltered).
			Time("login_time", event.Timestamp).
			Msg("Alert raised")
	}
	return alerts
}
