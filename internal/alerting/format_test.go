// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
)

func testAlert(id int64, user string, name models.AlertName, desc string) *models.Alert {
	return &models.Alert{
		ID:          id,
		UserID:      1,
		Username:    user,
		Name:        name,
		Description: desc,
		CreatedAt:   time.Date(2023, 3, 8, 17, 8, 33, 0, time.UTC),
	}
}

func TestFormatter_SingleAlert(t *testing.T) {
	t.Parallel()

	f, err := NewFormatter("")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	msg, err := f.Alert([]*models.Alert{testAlert(1, "alice", models.AlertNewDevice, "Login from new device for User: alice")})
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}

	if msg.Title != "Login Anomaly Alert: New Device" {
		t.Errorf("title = %q", msg.Title)
	}
	want := "Dear user,\n\nAn unusual login activity has been detected:\n\nLogin from new device for User: alice\n\nStay Safe,\nBuffalogs"
	if msg.Body != want {
		t.Errorf("body = %q, want %q", msg.Body, want)
	}
	if msg.Kind != KindAlert || msg.Username != "alice" || msg.Name != models.AlertNewDevice {
		t.Errorf("message = %+v", msg)
	}
}

func TestFormatter_Clubbed(t *testing.T) {
	t.Parallel()

	f, err := NewFormatter("")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	msg, err := f.Alert([]*models.Alert{
		testAlert(1, "bob", models.AlertNewCountry, "first description"),
		testAlert(2, "bob", models.AlertNewCountry, "second description"),
	})
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if msg.Title != "Login Anomaly Alert: New Country (2 alerts)" {
		t.Errorf("title = %q", msg.Title)
	}
	for _, want := range []string{"first description", "second description", "user bob", "Stay Safe,\nBuffalogs"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if len(msg.Alerts) != 2 {
		t.Errorf("alerts = %d", len(msg.Alerts))
	}
}

func TestFormatter_Empty(t *testing.T) {
	t.Parallel()

	f, err := NewFormatter("")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	if _, err := f.Alert(nil); err == nil {
		t.Error("expected error for no alerts")
	}
}

func TestFormatter_Summary(t *testing.T) {
	t.Parallel()

	f, err := NewFormatter("")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := BuildSummary([]*models.Alert{
		testAlert(1, "alice", models.AlertNewDevice, ""),
		testAlert(2, "alice", models.AlertImpossibleTravel, ""),
		testAlert(3, "bob", models.AlertNewDevice, ""),
	}, start, start.AddDate(0, 0, 1))

	msg, err := f.Summary(s)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if msg.Title != "BuffaLogs Alert Summary: 2024-05-01 - 2024-05-02" {
		t.Errorf("title = %q", msg.Title)
	}
	for _, want := range []string{"Total alerts: 3 (0 filtered)", "- New Device: 2", "- Imp Travel: 1", "- alice: 2", "- bob: 1"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestFormatter_Mention(t *testing.T) {
	t.Parallel()

	f, err := NewFormatter("")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	if got := f.Mention("<@U123>", "body"); got != "<@U123> body" {
		t.Errorf("Mention = %q", got)
	}
}

func TestFormatter_CustomDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	custom := `{{define "alert_title"}}[SOC] {{.Name}}{{end}}{{define "alert_body"}}{{.Username}}: {{.Description}}{{end}}`
	if err := os.WriteFile(filepath.Join(dir, "alert.tmpl"), []byte(custom), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := NewFormatter(dir)
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	msg, err := f.Alert([]*models.Alert{testAlert(1, "alice", models.AlertNewDevice, "desc")})
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if msg.Title != "[SOC] New Device" || msg.Body != "alice: desc" {
		t.Errorf("message = %q / %q", msg.Title, msg.Body)
	}

	// untouched templates keep the defaults
	sum, err := f.Summary(Summary{Start: time.Unix(0, 0), End: time.Unix(86400, 0)})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.HasPrefix(sum.Title, "BuffaLogs Alert Summary") {
		t.Errorf("summary title = %q", sum.Title)
	}
}

func TestFormatter_InvalidCustomTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mention.tmpl"), []byte(`{{define "mention"}}{{.Mention`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFormatter(dir)
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigError", err)
	}
}

func TestSummaryWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		period     string
		start, end time.Time
		wantErr    bool
	}{
		{PeriodDaily, time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), false},
		{PeriodWeekly, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), false},
		{"monthly", time.Time{}, time.Time{}, true},
	}
	for _, tt := range tests {
		start, end, err := SummaryWindow(tt.period, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.period, err)
			continue
		}
		if !start.Equal(tt.start) || !end.Equal(tt.end) {
			t.Errorf("%s: window = %s - %s", tt.period, start, end)
		}
	}
}

func TestBuildSummary_TopUsers(t *testing.T) {
	t.Parallel()

	var alerts []*models.Alert
	for i := 0; i < 15; i++ {
		user := "user" + string(rune('a'+i))
		for j := 0; j <= i; j++ {
			alerts = append(alerts, testAlert(int64(len(alerts)+1), user, models.AlertNewDevice, ""))
		}
	}
	alerts[0].IsFiltered = true

	s := BuildSummary(alerts, time.Unix(0, 0), time.Unix(1, 0))
	if len(s.ByUser) != topUsers {
		t.Fatalf("top users = %d, want %d", len(s.ByUser), topUsers)
	}
	if s.ByUser[0].Key != "usero" || s.ByUser[0].Count != 15 {
		t.Errorf("first = %+v", s.ByUser[0])
	}
	if s.Filtered != 1 || s.Total != len(alerts) {
		t.Errorf("total/filtered = %d/%d", s.Total, s.Filtered)
	}
}
