// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package vpn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/buffalogs/internal/logging"
)

// Service owns the active Lookup. Readers never block on a reload: a new
// Lookup is built aside and swapped in.
type Service struct {
	cfg    Config
	client *http.Client

	current atomic.Pointer[Lookup]

	// mu serializes Load and Refresh.
	mu         sync.Mutex
	remoteHash string
	remoteData []byte
}

// NewService validates the configured networks. The returned Service
// already answers for them; Load adds the file and remote sources.
func NewService(cfg Config) (*Service, error) {
	var errs []error
	for _, n := range cfg.Networks {
		if _, err := ParseNetwork(n); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid anonymizer networks: %w", err)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultConfig().HTTPTimeout
	}

	l := NewLookup()
	for _, n := range cfg.Networks {
		_ = l.Add(n, providerLocal, SourceConfig)
	}
	s := &Service{cfg: cfg, client: &http.Client{Timeout: cfg.HTTPTimeout}}
	s.current.Store(l)
	return s, nil
}

// Load rebuilds the lookup from every configured source. A failing remote
// source is logged and the previous remote data, if any, is kept.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.SourceURL != "" {
		data, err := s.fetchWithRetry(ctx, s.cfg.SourceURL)
		if err != nil {
			logging.Warn().Err(err).Str("url", s.cfg.SourceURL).Msg("Anonymizer source unavailable, keeping previous data")
		} else {
			s.remoteData = data
			s.remoteHash = hashOf(data)
		}
	}
	return s.swap()
}

// Refresh re-fetches the remote source and rebuilds the lookup when the
// content changed. It reports whether a new lookup was installed.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	if s.cfg.SourceURL == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.fetchWithRetry(ctx, s.cfg.SourceURL)
	if err != nil {
		return false, err
	}
	hash := hashOf(data)
	if hash == s.remoteHash {
		logging.Debug().Str("hash", hash[:16]).Msg("Anonymizer data unchanged")
		return false, nil
	}
	s.remoteData = data
	s.remoteHash = hash
	if err := s.swap(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) swap() error {
	l, err := s.build(s.remoteData)
	if err != nil {
		return err
	}
	s.current.Store(l)
	logging.Info().Int("entries", l.Count()).Int("providers", l.Providers()).Msg("Anonymizer lookup loaded")
	return nil
}

func (s *Service) build(remote []byte) (*Lookup, error) {
	l := NewLookup()
	for _, n := range s.cfg.Networks {
		if err := l.Add(n, providerLocal, SourceConfig); err != nil {
			return nil, err
		}
	}
	if s.cfg.DataFile != "" {
		if _, err := NewImporter(l, SourceFile).ImportFile(s.cfg.DataFile); err != nil {
			return nil, err
		}
	}
	if len(remote) > 0 {
		if _, err := NewImporter(l, SourceRemote).ImportBytes(remote); err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", s.cfg.SourceURL, err)
		}
	}
	return l, nil
}

// Contains reports whether ip belongs to a known anonymizer.
func (s *Service) Contains(ip string) bool {
	return s.current.Load().Contains(ip)
}

// LookupIP returns the match details for ip.
func (s *Service) LookupIP(ip string) LookupResult {
	return s.current.Load().LookupIP(ip)
}

// Count returns the number of entries in the active lookup.
func (s *Service) Count() int {
	return s.current.Load().Count()
}

// UpdateInterval is the configured refresh period; zero when there is no
// remote source.
func (s *Service) UpdateInterval() time.Duration {
	if s.cfg.SourceURL == "" {
		return 0
	}
	return s.cfg.UpdateInterval
}
