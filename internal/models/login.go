// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package models

import (
	"strings"
	"time"
)

// LoginStatus is the outcome of an authentication event.
type LoginStatus string

const (
	LoginSuccess LoginStatus = "success"
	LoginFailure LoginStatus = "failure"
)

// ParseLoginStatus maps source outcomes onto success/failure. The second
// return is false for anything else (unknown outcomes are dropped).
func ParseLoginStatus(s string) (LoginStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "succeeded", "successful", "ok":
		return LoginSuccess, true
	case "failure", "failed", "fail":
		return LoginFailure, true
	}
	return "", false
}

// LoginEvent is the canonical login record produced by every ingestion source.
type LoginEvent struct {
	Timestamp            time.Time      `json:"timestamp"`
	IP                   string         `json:"ip"`
	Country              string         `json:"country"`
	Latitude             *float64       `json:"lat"`
	Longitude            *float64       `json:"lon"`
	UserAgent            string         `json:"agent"`
	Username             string         `json:"username"`
	Index                string         `json:"index"`
	EventID              string         `json:"id"`
	Status               LoginStatus    `json:"status"`
	FailureReason        string         `json:"failure_reason,omitempty"`
	ISP                  string         `json:"organization,omitempty"`
	IntelligenceCategory string         `json:"intelligence_category,omitempty"`
	Raw                  map[string]any `json:"-"`
}

// Normalize returns a canonical copy of e. Applying it twice yields the
// same value as applying it once.
func (e LoginEvent) Normalize() LoginEvent {
	e.Username = strings.ToLower(strings.TrimSpace(e.Username))
	e.IP = strings.TrimSpace(e.IP)
	e.Country = strings.TrimSpace(e.Country)
	e.UserAgent = strings.TrimSpace(e.UserAgent)
	e.Index = strings.TrimSpace(e.Index)
	e.EventID = strings.TrimSpace(e.EventID)
	e.ISP = strings.TrimSpace(e.ISP)
	e.IntelligenceCategory = strings.ToLower(strings.TrimSpace(e.IntelligenceCategory))
	e.FailureReason = strings.TrimSpace(e.FailureReason)
	if st, ok := ParseLoginStatus(string(e.Status)); ok {
		e.Status = st
	}
	if !e.Timestamp.IsZero() {
		e.Timestamp = e.Timestamp.UTC()
	}
	return e
}

// HasCoordinates reports whether both latitude and longitude are known.
func (e *LoginEvent) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// DedupeKey identifies the event for a user: the source event ID when one
// exists, otherwise timestamp and IP.
func (e *LoginEvent) DedupeKey() string {
	if e.EventID != "" {
		return "id:" + e.EventID
	}
	return "ts:" + e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + e.IP
}

// RawData is the JSON-friendly view of the login stored on alerts.
func (e *LoginEvent) RawData() map[string]any {
	data := map[string]any{
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
		"ip":        e.IP,
		"country":   e.Country,
		"agent":     e.UserAgent,
		"index":     e.Index,
		"id":        e.EventID,
	}
	if e.Latitude != nil {
		data["lat"] = *e.Latitude
	}
	if e.Longitude != nil {
		data["lon"] = *e.Longitude
	}
	if e.ISP != "" {
		data["organization"] = e.ISP
	}
	return data
}

// Login is a persisted login event.
type Login struct {
	ID                int64  `json:"id"`
	UserID            int64  `json:"user_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	LoginEvent
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
