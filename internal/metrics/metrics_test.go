// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngest(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		outcome   string
	}{
		{"success", nil, false, "success"},
		{"retryable failure", errors.New("timeout"), true, "retryable"},
		{"fatal failure", errors.New("401"), false, "fatal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := IngestRequests.WithLabelValues("test-src", "users", tt.outcome)
			before := testutil.ToFloat64(c)
			RecordIngest("test-src", "users", 10*time.Millisecond, tt.err, tt.retryable)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("counter delta = %v, want 1", got)
			}
		})
	}
}

func TestRecordTask(t *testing.T) {
	okC := TaskRuns.WithLabelValues("test_task", "manual", "ok")
	errC := TaskRuns.WithLabelValues("test_task", "manual", "error")
	okBefore, errBefore := testutil.ToFloat64(okC), testutil.ToFloat64(errC)

	RecordTask("test_task", "manual", time.Second, nil)
	RecordTask("test_task", "manual", time.Second, errors.New("boom"))

	if testutil.ToFloat64(okC)-okBefore != 1 || testutil.ToFloat64(errC)-errBefore != 1 {
		t.Error("task counters not incremented")
	}
	if testutil.ToFloat64(TaskLastSuccess.WithLabelValues("test_task")) == 0 {
		t.Error("last success not set")
	}
}

func TestRecordAlert(t *testing.T) {
	c := AlertsCreated.WithLabelValues("New Device", "true")
	before := testutil.ToFloat64(c)
	RecordAlert("New Device", true)
	if testutil.ToFloat64(c)-before != 1 {
		t.Error("alert counter not incremented")
	}
}

func TestSetUsersByRisk(t *testing.T) {
	SetUsersByRisk(map[string]int{"High": 2, "Low": 5})
	SetUsersByRisk(map[string]int{"Low": 1})
	if got := testutil.ToFloat64(UsersByRisk.WithLabelValues("Low")); got != 1 {
		t.Errorf("Low = %v", got)
	}
	if n := testutil.CollectAndCount(UsersByRisk); n != 1 {
		t.Errorf("series = %d, want 1 after reset", n)
	}
}
