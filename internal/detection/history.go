// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"sort"
	"time"

	"github.com/tomtom215/buffalogs/internal/models"
)

// History is the ordered list of a user's successful logins. Queries only
// ever see logins strictly earlier than the time they are asked about, so
// an event is never compared with itself or with later events.
//
// History is not safe for concurrent use; the pipeline keeps one per user
// goroutine.
type History struct {
	logins []models.Login
}

// NewHistory copies prior and orders it by timestamp, then ID.
func NewHistory(prior []models.Login) *History {
	logins := make([]models.Login, len(prior))
	copy(logins, prior)
	sort.SliceStable(logins, func(i, j int) bool {
		if logins[i].Timestamp.Equal(logins[j].Timestamp) {
			return logins[i].ID < logins[j].ID
		}
		return logins[i].Timestamp.Before(logins[j].Timestamp)
	})
	return &History{logins: logins}
}

// Append inserts l after every login with the same or an earlier timestamp.
func (h *History) Append(l models.Login) {
	i := sort.Search(len(h.logins), func(i int) bool {
		return h.logins[i].Timestamp.After(l.Timestamp)
	})
	h.logins = append(h.logins, models.Login{})
	copy(h.logins[i+1:], h.logins[i:])
	h.logins[i] = l
}

// Len returns the number of logins.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.logins)
}

// Before returns the logins strictly earlier than t, oldest first. The
// slice aliases the history and must not be modified.
func (h *History) Before(t time.Time) []models.Login {
	if h == nil {
		return nil
	}
	n := sort.Search(len(h.logins), func(i int) bool {
		return !h.logins[i].Timestamp.Before(t)
	})
	return h.logins[:n]
}

// LastWithCoordinates returns the most recent login before t that has a
// position, or nil.
func (h *History) LastWithCoordinates(t time.Time) *models.Login {
	prior := h.Before(t)
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].HasCoordinates() {
			return &prior[i]
		}
	}
	return nil
}

// LastFromCountry returns the most recent login before t from country, or nil.
func (h *History) LastFromCountry(country string, t time.Time) *models.Login {
	prior := h.Before(t)
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Country == country {
			return &prior[i]
		}
	}
	return nil
}

// SeenDevice reports whether a login before t used userAgent or a user
// agent with the same fingerprint.
func (h *History) SeenDevice(userAgent, fingerprint string, t time.Time) bool {
	for _, l := range h.Before(t) {
		if userAgent != "" && l.UserAgent == userAgent {
			return true
		}
		fp := l.DeviceFingerprint
		if fp == "" {
			fp = Fingerprint(l.UserAgent)
		}
		if fp == fingerprint {
			return true
		}
	}
	return false
}
