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
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

// Elasticsearch reads ECS authentication events with the official client.
type Elasticsearch struct {
	*Normalizer
	client  *elasticsearch.Client
	cfg     config.SourceConfig
	fields  searchFields
	breaker *breaker
	timeout time.Duration
}

// NewElasticsearch builds the client. No request is made until the first
// query.
func NewElasticsearch(cfg config.SourceConfig) (*Elasticsearch, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per source
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{cfg.URL},
		Username:     cfg.Username,
		Password:     cfg.Password,
		APIKey:       cfg.APIKey,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	n := NewNormalizer(config.SourceElasticsearch, cfg.Mapping)
	return &Elasticsearch{
		Normalizer: n,
		client:     client,
		cfg:        cfg,
		fields:     newSearchFields(n.Mapping()),
		breaker:    newBreaker(config.SourceElasticsearch),
		timeout:    time.Duration(cfg.Timeout) * time.Second,
	}, nil
}

// Name implements Source.
func (e *Elasticsearch) Name() string { return config.SourceElasticsearch }

// ProcessUsers implements Source.
func (e *Elasticsearch) ProcessUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: e.Name(), Op: "users", Err: err}
	}
	resp, err := e.search(ctx, "users", e.fields.usersQuery(start, end, e.cfg.BucketSize))
	if err != nil {
		return nil, err
	}
	users := resp.usernames()
	logging.Info().Str("source", e.Name()).Int("users", len(users)).
		Time("start", start).Time("end", end).Msg("Successfully got users")
	return users, nil
}

// ProcessUserLogins implements Source.
func (e *Elasticsearch) ProcessUserLogins(ctx context.Context, start, end time.Time, username string) ([]Raw, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: e.Name(), Op: "logins", Err: err}
	}
	resp, err := e.search(ctx, "logins", e.fields.loginsQuery(start, end, username, e.cfg.BucketSize))
	if err != nil {
		return nil, err
	}
	raws := resp.raws()
	logging.Debug().Str("source", e.Name()).Str("username", username).Int("logins", len(raws)).
		Msg("Got logins to be normalized")
	return raws, nil
}

func (e *Elasticsearch) search(ctx context.Context, op string, query map[string]any) (*searchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, &IngestError{Source: e.Name(), Op: op, Err: fmt.Errorf("error encoding query: %w", err)}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return call(e.breaker, e.Name(), op, func() (*searchResponse, error) {
		res, err := e.client.Search(
			e.client.Search.WithContext(ctx),
			e.client.Search.WithIndex(e.cfg.Indexes...),
			e.client.Search.WithBody(bytes.NewReader(body)),
			e.client.Search.WithIgnoreUnavailable(true),
		)
		if err != nil {
			return nil, transportError(e.Name(), op, err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.IsError() {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return nil, statusError(e.Name(), op, res.StatusCode, strings.TrimSpace(string(msg)))
		}

		var out searchResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, payloadError(e.Name(), op, err)
		}
		return &out, nil
	})
}
