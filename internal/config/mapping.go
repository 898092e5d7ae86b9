// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package config

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical login fields a source path can be mapped to.
const (
	FieldTimestamp            = "timestamp"
	FieldIP                   = "ip"
	FieldCountry              = "country"
	FieldLat                  = "lat"
	FieldLon                  = "lon"
	FieldUserAgent            = "user_agent"
	FieldUsername             = "username"
	FieldIndex                = "index"
	FieldEventID              = "event_id"
	FieldStatus               = "status"
	FieldFailureReason        = "failure_reason"
	FieldISP                  = "isp"
	FieldIntelligenceCategory = "intelligence_category"
)

var canonicalFields = map[string]struct{}{
	FieldTimestamp: {}, FieldIP: {}, FieldCountry: {}, FieldLat: {}, FieldLon: {},
	FieldUserAgent: {}, FieldUsername: {}, FieldIndex: {}, FieldEventID: {},
	FieldStatus: {}, FieldFailureReason: {}, FieldISP: {}, FieldIntelligenceCategory: {},
}

// DefaultMapping is the ECS layout used when a source has no custom_mapping.
var DefaultMapping = map[string]string{
	"@timestamp":                   FieldTimestamp,
	"source.ip":                    FieldIP,
	"source.geo.country_name":      FieldCountry,
	"source.geo.location.lat":      FieldLat,
	"source.geo.location.lon":      FieldLon,
	"user_agent.original":          FieldUserAgent,
	"user.name":                    FieldUsername,
	"_index":                       FieldIndex,
	"_id":                          FieldEventID,
	"event.outcome":                FieldStatus,
	"event.reason":                 FieldFailureReason,
	"source.as.organization.name":  FieldISP,
	"source.intelligence_category": FieldIntelligenceCategory,
}

// FieldPath is a parsed dotted source path such as "userIdentity.userName".
type FieldPath struct {
	Raw      string
	Segments []string
}

// ParseFieldPath splits a dotted path. Empty paths and empty segments
// ("a..b", ".a", "a.") are rejected.
func ParseFieldPath(raw string) (FieldPath, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FieldPath{}, fmt.Errorf("empty field path")
	}
	segs := strings.Split(raw, ".")
	for _, s := range segs {
		if s == "" {
			return FieldPath{}, fmt.Errorf("field path %q has an empty segment", raw)
		}
	}
	return FieldPath{Raw: raw, Segments: segs}, nil
}

// FieldMapping binds one source path to one canonical field.
type FieldMapping struct {
	Source FieldPath
	Target string
}

// Mapping is a compiled custom_mapping, ordered by source path.
type Mapping []FieldMapping

// CompileMapping validates a source-path to canonical-field table. Unknown
// targets and malformed paths are errors; a nil or empty table compiles to
// DefaultMapping.
func CompileMapping(m map[string]string) (Mapping, error) {
	if len(m) == 0 {
		m = DefaultMapping
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Mapping, 0, len(keys))
	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		target := strings.TrimSpace(m[k])
		if _, ok := canonicalFields[target]; !ok {
			return nil, fmt.Errorf("mapping %q: unknown target field %q", k, target)
		}
		if prev, dup := seen[target]; dup {
			return nil, fmt.Errorf("mapping %q: target %q already mapped from %q", k, target, prev)
		}
		p, err := ParseFieldPath(k)
		if err != nil {
			return nil, err
		}
		seen[target] = k
		out = append(out, FieldMapping{Source: p, Target: target})
	}
	if _, ok := seen[FieldUsername]; !ok {
		return nil, fmt.Errorf("mapping has no source for %q", FieldUsername)
	}
	if _, ok := seen[FieldTimestamp]; !ok {
		return nil, fmt.Errorf("mapping has no source for %q", FieldTimestamp)
	}
	return out, nil
}

// SourceFor returns the source path mapped to target.
func (m Mapping) SourceFor(target string) (FieldPath, bool) {
	for _, fm := range m {
		if fm.Target == target {
			return fm.Source, true
		}
	}
	return FieldPath{}, false
}

// Has reports whether target is mapped.
func (m Mapping) Has(target string) bool {
	_, ok := m.SourceFor(target)
	return ok
}

// SourcePaths lists the raw source paths in order.
func (m Mapping) SourcePaths() []string {
	out := make([]string, len(m))
	for i, fm := range m {
		out[i] = fm.Source.Raw
	}
	return out
}
