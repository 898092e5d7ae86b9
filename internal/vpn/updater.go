// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package vpn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomtom215/buffalogs/internal/logging"
)

// DefaultGluetunURL is the raw GitHub URL of gluetun's servers.json.
const DefaultGluetunURL = "https://raw.githubusercontent.com/qdm12/gluetun/master/internal/storage/servers.json"

// maxFeedSize caps a downloaded feed at 50MB.
const maxFeedSize = 50 << 20

// fetchWithRetry fetches url with exponential backoff.
func (s *Service) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := s.cfg.RetryDelay

	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			logging.Info().Int("attempt", attempt).Int("max_attempts", s.cfg.RetryAttempts).
				Dur("delay", delay).Msg("Retrying anonymizer fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		data, err := s.fetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		logging.Warn().Err(err).Int("attempt", attempt+1).Msg("Anonymizer fetch attempt failed")
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", s.cfg.RetryAttempts+1, lastErr)
}

func (s *Service) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "BuffaLogs-Anonymizer-Updater/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
