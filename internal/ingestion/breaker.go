// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/metrics"
)

// breaker guards the remote calls of one source. Only retryable failures
// count toward opening it: a 401 says nothing about the source's health.
type breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// breakerTrip is the number of consecutive retryable failures that opens
// the circuit.
const breakerTrip = 5

func newBreaker(source string) *breaker {
	name := "ingest-" + source
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &breaker{name: name, cb: cb}
}

// execute runs fn through the breaker. A rejected call becomes a retryable
// IngestError for source/op.
func (b *breaker) execute(source, op string, fn func() (any, error)) (any, error) {
	start := time.Now()
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		logging.Warn().Str("breaker", b.name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		err = &IngestError{Source: source, Op: op, Retryable: true, Err: err}
		metrics.RecordIngest(source, op, time.Since(start), err, true)
		return nil, err
	}
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	} else {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	}
	metrics.RecordIngest(source, op, time.Since(start), err, IsRetryable(err))
	return out, err
}

// call is execute with a typed result.
func call[T any](b *breaker, source, op string, fn func() (T, error)) (T, error) {
	out, err := b.execute(source, op, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
