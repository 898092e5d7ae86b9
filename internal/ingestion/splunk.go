// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

// Splunk runs searches through the streaming export endpoint, which
// returns results without creating and polling a job.
type Splunk struct {
	*Normalizer
	http    *http.Client
	base    *url.URL
	cfg     config.SourceConfig
	fields  searchFields
	breaker *breaker
}

// splunkRow is one line of the export stream.
type splunkRow struct {
	Preview  bool           `json:"preview"`
	Result   map[string]any `json:"result"`
	Messages []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"messages"`
}

// NewSplunk validates the URL and prepares the HTTP client.
func NewSplunk(cfg config.SourceConfig) (*Splunk, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid Splunk url %q", cfg.URL)
	}
	n := NewNormalizer(config.SourceSplunk, cfg.Mapping)
	return &Splunk{
		Normalizer: n,
		http:       newHTTPClient(cfg),
		base:       base,
		cfg:        cfg,
		fields:     newSearchFields(n.Mapping()),
		breaker:    newBreaker(config.SourceSplunk),
	}, nil
}

// Name implements Source.
func (s *Splunk) Name() string { return config.SourceSplunk }

// ProcessUsers implements Source.
func (s *Splunk) ProcessUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: s.Name(), Op: "users", Err: err}
	}
	user := splunkField(s.fields.username)
	search := fmt.Sprintf(`search %s event.category="authentication" event.type="start" | stats count by %s | where isnotnull(%s) AND %s!=""`,
		s.indexClause(), user, user, user)

	rows, err := s.export(ctx, "users", search, start, end)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(rows))
	for _, r := range rows {
		if name := toString(r[s.fields.username]); name != "" {
			users = append(users, name)
		}
	}
	logging.Info().Str("source", s.Name()).Int("users", len(users)).Msg("Successfully got users")
	return users, nil
}

// ProcessUserLogins implements Source.
func (s *Splunk) ProcessUserLogins(ctx context.Context, start, end time.Time, username string) ([]Raw, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: s.Name(), Op: "logins", Err: err}
	}
	fields := make([]string, 0, len(s.fields.includes)+3)
	for _, f := range s.fields.includes {
		fields = append(fields, splunkField(f))
	}
	fields = append(fields, "index", "_time", "_cd")

	search := fmt.Sprintf(`search %s %s="%s" event.category="authentication" event.type="start" | fields %s | sort 0 _time`,
		s.indexClause(), splunkField(s.fields.username), splunkEscape(username), strings.Join(fields, ", "))

	rows, err := s.export(ctx, "logins", search, start, end)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		fillSplunkMeta(r)
	}
	return rows, nil
}

func (s *Splunk) indexClause() string {
	if len(s.cfg.Indexes) == 0 {
		return "index=*"
	}
	parts := make([]string, len(s.cfg.Indexes))
	for i, idx := range s.cfg.Indexes {
		parts[i] = "index=" + splunkEscape(idx)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func (s *Splunk) export(ctx context.Context, op, search string, start, end time.Time) ([]Raw, error) {
	form := url.Values{}
	form.Set("search", search)
	form.Set("output_mode", "json")
	form.Set("earliest_time", strconv.FormatInt(start.Unix(), 10))
	form.Set("latest_time", strconv.FormatInt(end.Unix(), 10))
	if s.cfg.BucketSize > 0 {
		form.Set("count", strconv.Itoa(s.cfg.BucketSize))
	}
	endpoint := s.base.JoinPath("services", "search", "jobs", "export").String()

	return call(s.breaker, s.Name(), op, func() ([]Raw, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, &IngestError{Source: s.Name(), Op: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if s.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
		} else if s.cfg.Username != "" {
			req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
		}

		res, err := s.http.Do(req)
		if err != nil {
			return nil, transportError(s.Name(), op, err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return nil, statusError(s.Name(), op, res.StatusCode, strings.TrimSpace(string(msg)))
		}
		return decodeSplunkStream(s.Name(), op, res.Body)
	})
}

// decodeSplunkStream reads the concatenated JSON objects of an export
// response, keeping final (non-preview) results.
func decodeSplunkStream(source, op string, r io.Reader) ([]Raw, error) {
	dec := json.NewDecoder(r)
	var out []Raw
	for {
		var row splunkRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, payloadError(source, op, err)
		}
		for _, m := range row.Messages {
			if strings.EqualFold(m.Type, "FATAL") || strings.EqualFold(m.Type, "ERROR") {
				return nil, &IngestError{Source: source, Op: op, Err: fmt.Errorf("search failed: %s", m.Text)}
			}
		}
		if row.Preview || row.Result == nil {
			continue
		}
		out = append(out, row.Result)
	}
}

// fillSplunkMeta copies Splunk's built-in fields to the names the default
// mapping expects when the event does not carry them itself.
func fillSplunkMeta(r Raw) {
	if _, ok := r["@timestamp"]; !ok {
		if t, ok := r["_time"]; ok {
			r["@timestamp"] = t
		}
	}
	if _, ok := r["_index"]; !ok {
		if idx, ok := r["index"]; ok {
			r["_index"] = idx
		}
	}
	if _, ok := r["_id"]; !ok {
		if cd, ok := r["_cd"]; ok {
			r["_id"] = cd
		}
	}
}

// splunkField quotes field names that SPL would otherwise parse as
// expressions, such as "@timestamp".
func splunkField(f string) string {
	if strings.ContainsAny(f, "@ -") {
		return "'" + f + "'"
	}
	return f
}

func splunkEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
