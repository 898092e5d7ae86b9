// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
	"github.com/tomtom215/buffalogs/internal/models"
)

// Normalizer projects raw records onto models.LoginEvent with a compiled
// field mapping. It is shared by all adapters.
type Normalizer struct {
	source  string
	mapping config.Mapping
}

// NewNormalizer returns a Normalizer for source. A nil mapping uses
// config.DefaultMapping.
func NewNormalizer(source string, mapping config.Mapping) *Normalizer {
	if len(mapping) == 0 {
		mapping, _ = config.CompileMapping(nil)
	}
	return &Normalizer{source: source, mapping: mapping}
}

// Mapping returns the compiled mapping.
func (n *Normalizer) Mapping() config.Mapping { return n.mapping }

// NormalizeFields maps raws in order. The output depends only on the
// input: equal inputs give equal outputs.
func (n *Normalizer) NormalizeFields(raws []Raw) []models.LoginEvent {
	out := make([]models.LoginEvent, 0, len(raws))
	for _, raw := range raws {
		ev, reason := n.normalize(raw)
		if reason != "" {
			metrics.IngestEvents.WithLabelValues(n.source, reason).Inc()
			logging.Debug().Str("source", n.source).Str("reason", reason).Msg("Dropped login record")
			continue
		}
		metrics.IngestEvents.WithLabelValues(n.source, "emitted").Inc()
		out = append(out, ev)
	}
	return out
}

func (n *Normalizer) normalize(raw Raw) (models.LoginEvent, string) {
	ev := models.LoginEvent{Raw: raw, Status: models.LoginSuccess}

	for _, fm := range n.mapping {
		v, ok := lookup(raw, fm.Source)
		if !ok {
			continue
		}
		switch fm.Target {
		case config.FieldTimestamp:
			ev.Timestamp, _ = toTime(v)
		case config.FieldIP:
			ev.IP = toString(v)
		case config.FieldCountry:
			ev.Country = toString(v)
		case config.FieldLat:
			ev.Latitude = toFloat(v)
		case config.FieldLon:
			ev.Longitude = toFloat(v)
		case config.FieldUserAgent:
			ev.UserAgent = toString(v)
		case config.FieldUsername:
			ev.Username = toString(v)
		case config.FieldIndex:
			ev.Index = IndexTag(toString(v))
		case config.FieldEventID:
			ev.EventID = toString(v)
		case config.FieldStatus:
			ev.Status = models.LoginStatus(toString(v))
		case config.FieldFailureReason:
			ev.FailureReason = toString(v)
		case config.FieldISP:
			ev.ISP = toString(v)
		case config.FieldIntelligenceCategory:
			ev.IntelligenceCategory = toString(v)
		}
	}

	// A mapped status path with no value counts as a missing status.
	if n.mapping.Has(config.FieldStatus) {
		if p, _ := n.mapping.SourceFor(config.FieldStatus); !has(raw, p) {
			ev.Status = ""
		}
	}

	ev = ev.Normalize()
	switch {
	case ev.Username == "":
		return ev, "no_username"
	case ev.Status != models.LoginSuccess && ev.Status != models.LoginFailure:
		return ev, "bad_status"
	case ev.Timestamp.IsZero():
		return ev, "no_timestamp"
	}
	return ev, ""
}

// IndexTag reduces an index name to its prefix before the first "-";
// the "fw" prefix becomes "fw-proxy".
func IndexTag(index string) string {
	index = strings.TrimSpace(index)
	if index == "" {
		return ""
	}
	prefix, _, _ := strings.Cut(index, "-")
	if prefix == "fw" {
		return "fw-proxy"
	}
	return prefix
}

// lookup walks nested maps along p. When the walk fails it tries the
// whole dotted path as one literal key, which is how flat sources such as
// Splunk return fields.
func lookup(raw Raw, p config.FieldPath) (any, bool) {
	var cur any = raw
	found := true
	for _, seg := range p.Segments {
		m, ok := cur.(map[string]any)
		if !ok {
			found = false
			break
		}
		if cur, ok = m[seg]; !ok {
			found = false
			break
		}
	}
	if found {
		return cur, cur != nil
	}
	v, ok := raw[p.Raw]
	return v, ok && v != nil
}

func has(raw Raw, p config.FieldPath) bool {
	v, ok := lookup(raw, p)
	return ok && toString(v) != ""
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		// Multi-valued fields (Splunk mv fields) keep their first value.
		if len(t) > 0 {
			return toString(t[0])
		}
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// toFloat returns nil for missing, empty or non-numeric values.
func toFloat(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case []any:
		if len(t) > 0 {
			return toFloat(t[0])
		}
		return nil
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// toTime parses RFC 3339 and common variants, or epoch seconds or
// milliseconds.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(f), true
		}
	case float64:
		return epoch(t), true
	case int64:
		return epoch(float64(t)), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return epoch(f), true
		}
	case time.Time:
		return t.UTC(), true
	}
	return time.Time{}, false
}

func epoch(f float64) time.Time {
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
