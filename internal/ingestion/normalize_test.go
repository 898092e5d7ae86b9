// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
)

func ecsRecord() Raw {
	return Raw{
		"@timestamp": "2026-03-01T10:00:00.000Z",
		"user":       map[string]any{"name": " Alice "},
		"source": map[string]any{
			"ip": "203.0.113.7",
			"geo": map[string]any{
				"country_name": "Italy",
				"location":     map[string]any{"lat": 45.46, "lon": 9.19},
			},
			"as": map[string]any{"organization": map[string]any{"name": "Example ISP"}},
		},
		"user_agent": map[string]any{"original": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"},
		"event":      map[string]any{"outcome": "Success"},
		"_id":        "evt-1",
		"_index":     "cloud-2026.03",
	}
}

func TestNormalizeFields_DefaultMapping(t *testing.T) {
	t.Parallel()
	n := NewNormalizer("test", nil)

	events := n.NormalizeFields([]Raw{ecsRecord()})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]

	if ev.Username != "alice" {
		t.Errorf("Username = %q, want alice", ev.Username)
	}
	if !ev.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
	if ev.IP != "203.0.113.7" || ev.Country != "Italy" || ev.ISP != "Example ISP" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Latitude == nil || *ev.Latitude != 45.46 || ev.Longitude == nil || *ev.Longitude != 9.19 {
		t.Errorf("coordinates = %v, %v", ev.Latitude, ev.Longitude)
	}
	if ev.Index != "cloud" {
		t.Errorf("Index = %q, want cloud", ev.Index)
	}
	if ev.EventID != "evt-1" {
		t.Errorf("EventID = %q", ev.EventID)
	}
	if ev.Status != models.LoginSuccess {
		t.Errorf("Status = %q", ev.Status)
	}
}

func TestNormalizeFields_FlatKeys(t *testing.T) {
	t.Parallel()
	n := NewNormalizer("test", nil)

	raw := Raw{
		"@timestamp":              "1772359200",
		"user.name":               "bob",
		"source.ip":               "198.51.100.1",
		"source.geo.country_name": "France",
		"source.geo.location.lat": "48.85",
		"source.geo.location.lon": []any{"2.35"},
		"event.outcome":           "failure",
		"event.reason":            "bad password",
		"_index":                  "fw-proxy-01",
	}
	events := n.NormalizeFields([]Raw{raw})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Username != "bob" || ev.Status != models.LoginFailure || ev.FailureReason != "bad password" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Index != "fw-proxy" {
		t.Errorf("Index = %q, want fw-proxy", ev.Index)
	}
	if !ev.Timestamp.Equal(time.Unix(1772359200, 0)) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
	if ev.Latitude == nil || *ev.Latitude != 48.85 || ev.Longitude == nil || *ev.Longitude != 2.35 {
		t.Errorf("coordinates = %v, %v", ev.Latitude, ev.Longitude)
	}
}

func TestNormalizeFields_Drops(t *testing.T) {
	t.Parallel()
	n := NewNormalizer("test", nil)

	tests := []struct {
		name   string
		mutate func(Raw)
		reason string
	}{
		{"no username", func(r Raw) { delete(r, "user") }, "no_username"},
		{"blank username", func(r Raw) { r["user"] = map[string]any{"name": "  "} }, "no_username"},
		{"unknown status", func(r Raw) { r["event"] = map[string]any{"outcome": "unknown"} }, "bad_status"},
		{"missing status", func(r Raw) { delete(r, "event") }, "bad_status"},
		{"missing timestamp", func(r Raw) { delete(r, "@timestamp") }, "no_timestamp"},
		{"bad timestamp", func(r Raw) { r["@timestamp"] = "yesterday" }, "no_timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := ecsRecord()
			tt.mutate(raw)
			if _, reason := n.normalize(raw); reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
			if got := n.NormalizeFields([]Raw{raw}); len(got) != 0 {
				t.Errorf("record was emitted: %+v", got)
			}
		})
	}
}

func TestNormalizeFields_UnmappedStatusDefaultsToSuccess(t *testing.T) {
	t.Parallel()
	m, err := config.CompileMapping(map[string]string{
		"eventTime":             "timestamp",
		"userIdentity.userName": "username",
		"sourceIPAddress":       "ip",
	})
	if err != nil {
		t.Fatalf("CompileMapping: %v", err)
	}
	n := NewNormalizer("test", m)

	events := n.NormalizeFields([]Raw{{
		"eventTime":       "2026-03-01T10:00:00Z",
		"userIdentity":    map[string]any{"userName": "Carol"},
		"sourceIPAddress": "192.0.2.10",
	}})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Status != models.LoginSuccess || events[0].Username != "carol" || events[0].IP != "192.0.2.10" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestNormalizeFields_Deterministic(t *testing.T) {
	t.Parallel()
	n := NewNormalizer("test", nil)

	second := ecsRecord()
	second["_id"] = "evt-2"
	second["user"] = map[string]any{"name": "dave"}
	raws := []Raw{ecsRecord(), second, {"user.name": "nobody"}}

	a := n.NormalizeFields(raws)
	b := n.NormalizeFields(raws)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("outputs differ:\n%+v\n%+v", a, b)
	}
	if len(a) != 2 || a[0].EventID != "evt-1" || a[1].EventID != "evt-2" {
		t.Fatalf("order or count changed: %+v", a)
	}
	for _, ev := range a {
		if again := ev.Normalize(); !reflect.DeepEqual(again, ev) {
			t.Errorf("Normalize is not idempotent:\n%+v\n%+v", ev, again)
		}
	}
}

func TestIndexTag(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"cloud-2026.03":  "cloud",
		"fw-proxy-01":    "fw-proxy",
		"fw-2026":        "fw-proxy",
		"weblog-foo-bar": "weblog",
		"plain":          "plain",
		"":               "",
	}
	for in, want := range tests {
		if got := IndexTag(in); got != want {
			t.Errorf("IndexTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToTime(t *testing.T) {
	t.Parallel()
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
	}{
		{"rfc3339", "2026-03-01T10:00:00Z"},
		{"offset", "2026-03-01T12:00:00+02:00"},
		{"splunk", "2026-03-01T10:00:00.000+0000"},
		{"epoch seconds", float64(want.Unix())},
		{"epoch millis", float64(want.UnixMilli())},
		{"epoch string", "1772359200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := toTime(tt.in)
			if !ok || !got.Equal(want) {
				t.Errorf("toTime(%v) = %v, %v", tt.in, got, ok)
			}
		})
	}
	if _, ok := toTime("not a time"); ok {
		t.Error("toTime accepted garbage")
	}
}
