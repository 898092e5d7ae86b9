// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// IngestError wraps a failed call to a log source. Retryable errors are
// worth another attempt after a backoff; the rest abort the window.
type IngestError struct {
	Source     string
	Op         string
	Retryable  bool
	StatusCode int
	Err        error
}

func (e *IngestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Source, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Kind is the label printed by the CLI.
func (e *IngestError) Kind() string { return "IngestError" }

// IsRetryable reports whether err is an IngestError marked retryable.
func IsRetryable(err error) bool {
	var ie *IngestError
	return errors.As(err, &ie) && ie.Retryable
}

// retryableStatus classifies an HTTP status returned by a source.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// retryableErr classifies a transport-level error.
func retryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func transportError(source, op string, err error) *IngestError {
	return &IngestError{Source: source, Op: op, Retryable: retryableErr(err), Err: err}
}

func statusError(source, op string, code int, body string) *IngestError {
	if len(body) > 512 {
		body = body[:512]
	}
	return &IngestError{
		Source:     source,
		Op:         op,
		Retryable:  retryableStatus(code),
		StatusCode: code,
		Err:        fmt.Errorf("unexpected response: %s", body),
	}
}

func payloadError(source, op string, err error) *IngestError {
	return &IngestError{Source: source, Op: op, Err: fmt.Errorf("malformed payload: %w", err)}
}
