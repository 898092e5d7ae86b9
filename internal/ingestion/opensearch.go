// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

// OpenSearch sends the Elasticsearch query DSL to the REST _search
// endpoint.
type OpenSearch struct {
	*Normalizer
	http    *http.Client
	base    *url.URL
	cfg     config.SourceConfig
	fields  searchFields
	breaker *breaker
}

// NewOpenSearch validates the URL and prepares the HTTP client.
func NewOpenSearch(cfg config.SourceConfig) (*OpenSearch, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid OpenSearch url %q", cfg.URL)
	}
	n := NewNormalizer(config.SourceOpenSearch, cfg.Mapping)
	return &OpenSearch{
		Normalizer: n,
		http:       newHTTPClient(cfg),
		base:       base,
		cfg:        cfg,
		fields:     newSearchFields(n.Mapping()),
		breaker:    newBreaker(config.SourceOpenSearch),
	}, nil
}

// Name implements Source.
func (o *OpenSearch) Name() string { return config.SourceOpenSearch }

// ProcessUsers implements Source.
func (o *OpenSearch) ProcessUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: o.Name(), Op: "users", Err: err}
	}
	resp, err := o.search(ctx, "users", o.fields.usersQuery(start, end, o.cfg.BucketSize))
	if err != nil {
		return nil, err
	}
	users := resp.usernames()
	logging.Info().Str("source", o.Name()).Int("users", len(users)).Msg("Successfully got users")
	return users, nil
}

// ProcessUserLogins implements Source.
func (o *OpenSearch) ProcessUserLogins(ctx context.Context, start, end time.Time, username string) ([]Raw, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: o.Name(), Op: "logins", Err: err}
	}
	resp, err := o.search(ctx, "logins", o.fields.loginsQuery(start, end, username, o.cfg.BucketSize))
	if err != nil {
		return nil, err
	}
	return resp.raws(), nil
}

func (o *OpenSearch) search(ctx context.Context, op string, query map[string]any) (*searchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, &IngestError{Source: o.Name(), Op: op, Err: fmt.Errorf("error encoding query: %w", err)}
	}
	endpoint := o.base.JoinPath(indexList(o.cfg.Indexes), "_search")
	q := endpoint.Query()
	q.Set("ignore_unavailable", "true")
	endpoint.RawQuery = q.Encode()

	return call(o.breaker, o.Name(), op, func() (*searchResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
		if err != nil {
			return nil, &IngestError{Source: o.Name(), Op: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		if o.cfg.Username != "" {
			req.SetBasicAuth(o.cfg.Username, o.cfg.Password)
		}

		res, err := o.http.Do(req)
		if err != nil {
			return nil, transportError(o.Name(), op, err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return nil, statusError(o.Name(), op, res.StatusCode, strings.TrimSpace(string(msg)))
		}
		var out searchResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, payloadError(o.Name(), op, err)
		}
		return &out, nil
	})
}

// newHTTPClient builds the client used by the REST adapters.
func newHTTPClient(cfg config.SourceConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per source
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
