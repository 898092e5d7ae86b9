// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package models

import (
	"fmt"
	"strings"
	"time"
)

// RiskScore is the ordinal risk band of a user.
type RiskScore string

const (
	RiskNone   RiskScore = "No risk"
	RiskLow    RiskScore = "Low"
	RiskMedium RiskScore = "Medium"
	RiskHigh   RiskScore = "High"
)

// RiskScores lists the bands in ascending order.
var RiskScores = []RiskScore{RiskNone, RiskLow, RiskMedium, RiskHigh}

// Rank returns 0 for No risk up to 3 for High, -1 for an unknown value.
func (r RiskScore) Rank() int {
	for i, s := range RiskScores {
		if s == r {
			return i
		}
	}
	return -1
}

// AtLeast reports whether r is the same band as other or a higher one.
func (r RiskScore) AtLeast(other RiskScore) bool {
	return r.Rank() >= other.Rank()
}

// ParseRiskScore accepts display names ("No risk") and snake case ("no_risk").
func ParseRiskScore(s string) (RiskScore, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", " ")
	for _, r := range RiskScores {
		if strings.ToLower(string(r)) == norm {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown risk score %q", s)
}

// RiskScoreFromCount maps the number of risk-raising alerts to a band:
// 0 is No risk, 1-2 Low, 3-4 Medium, 5 or more High.
func RiskScoreFromCount(n int) RiskScore {
	switch {
	case n <= 0:
		return RiskNone
	case n <= 2:
		return RiskLow
	case n <= 4:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// User is a monitored account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	RiskScore RiskScore `json:"risk_score"`
	RiskValue int       `json:"risk_value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
