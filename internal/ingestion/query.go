// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
)

// searchFields are the source paths the Elasticsearch-style adapters query
// on, taken from the mapping so that custom layouts keep working.
type searchFields struct {
	timestamp string
	username  string
	status    string
	includes  []string
}

func newSearchFields(m config.Mapping) searchFields {
	f := searchFields{timestamp: "@timestamp", username: "user.name"}
	if p, ok := m.SourceFor(config.FieldTimestamp); ok {
		f.timestamp = p.Raw
	}
	if p, ok := m.SourceFor(config.FieldUsername); ok {
		f.username = p.Raw
	}
	if p, ok := m.SourceFor(config.FieldStatus); ok {
		f.status = p.Raw
	}
	for _, p := range m.SourcePaths() {
		// Hit metadata is not part of _source.
		if p == "_id" || p == "_index" {
			continue
		}
		f.includes = append(f.includes, p)
	}
	return f
}

func (f searchFields) rangeFilter(start, end time.Time) map[string]any {
	return map[string]any{
		"range": map[string]any{
			f.timestamp: map[string]any{
				"gte": start.UTC().Format(time.RFC3339Nano),
				"lt":  end.UTC().Format(time.RFC3339Nano),
			},
		},
	}
}

func (f searchFields) statusFilter() (map[string]any, bool) {
	if f.status == "" {
		return nil, false
	}
	return map[string]any{
		"terms": map[string]any{
			f.status: []string{string(models.LoginSuccess), string(models.LoginFailure)},
		},
	}, true
}

// usersQuery aggregates the usernames with an authentication start event
// in [start, end).
func (f searchFields) usersQuery(start, end time.Time, size int) map[string]any {
	filters := []any{
		f.rangeFilter(start, end),
		map[string]any{"match": map[string]any{"event.category": "authentication"}},
		map[string]any{"match": map[string]any{"event.type": "start"}},
		map[string]any{"exists": map[string]any{"field": f.username}},
	}
	if sf, ok := f.statusFilter(); ok {
		filters = append(filters, sf)
	}
	return map[string]any{
		"size":  0,
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"aggs": map[string]any{
			"login_user": map[string]any{
				"terms": map[string]any{"field": f.username, "size": size},
			},
		},
	}
}

// loginsQuery returns the user's login records in [start, end) sorted by
// timestamp.
func (f searchFields) loginsQuery(start, end time.Time, username string, size int) map[string]any {
	filters := []any{
		f.rangeFilter(start, end),
		map[string]any{"match": map[string]any{f.username: username}},
		map[string]any{"match": map[string]any{"event.type": "start"}},
	}
	if sf, ok := f.statusFilter(); ok {
		filters = append(filters, sf)
	}
	return map[string]any{
		"size":    size,
		"query":   map[string]any{"bool": map[string]any{"filter": filters}},
		"sort":    []any{map[string]any{f.timestamp: map[string]any{"order": "asc"}}},
		"_source": map[string]any{"includes": f.includes},
	}
}

// searchResponse is the subset of an Elasticsearch/OpenSearch _search
// response the adapters read.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Index  string         `json:"_index"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		LoginUser struct {
			Buckets []struct {
				Key any `json:"key"`
			} `json:"buckets"`
		} `json:"login_user"`
	} `json:"aggregations"`
}

func (r *searchResponse) usernames() []string {
	out := make([]string, 0, len(r.Aggregations.LoginUser.Buckets))
	for _, b := range r.Aggregations.LoginUser.Buckets {
		if s := toString(b.Key); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// raws flattens hits into records, adding _id and _index from the hit
// metadata.
func (r *searchResponse) raws() []Raw {
	out := make([]Raw, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		raw := make(Raw, len(h.Source)+2)
		for k, v := range h.Source {
			raw[k] = v
		}
		raw["_id"] = h.ID
		raw["_index"] = h.Index
		out = append(out, raw)
	}
	return out
}

func indexList(indexes []string) string {
	if len(indexes) == 0 {
		return "*"
	}
	return strings.Join(indexes, ",")
}

func checkWindow(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("empty window [%s, %s)", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}
