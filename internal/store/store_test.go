// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/buffalogs/internal/models"
)

func setupTestStore(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newLogin(userID int64, ts time.Time, eventID, country string) *models.Login {
	return &models.Login{
		UserID: userID,
		LoginEvent: models.LoginEvent{
			Timestamp: ts,
			IP:        "203.0.113.7",
			Country:   country,
			UserAgent: "Mozilla/5.0",
			Index:     "cloud",
			EventID:   eventID,
			Status:    models.LoginSuccess,
		},
		DeviceFingerprint: "windows-10-desktop-chrome",
	}
}

func TestGetOrCreateUser(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()

	u1, err := db.GetOrCreateUser(ctx, " Alice ")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if u1.Username != "alice" || u1.RiskScore != models.RiskNone {
		t.Errorf("user = %+v", u1)
	}
	u2, err := db.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u1.ID != u2.ID {
		t.Errorf("second call created a new user: %d != %d", u1.ID, u2.ID)
	}

	if _, err := db.GetUser(ctx, "bob"); !IsNotFound(err) {
		t.Errorf("GetUser(bob) err = %v, want not found", err)
	}
	var se *StoreError
	if _, err := db.GetUser(ctx, "bob"); !errors.As(err, &se) || se.Kind() != "StoreError" {
		t.Errorf("want *StoreError, got %T", err)
	}
}

func TestSaveLoginWithAlerts_Dedupe(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	ts := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	alert := &models.Alert{UserID: u.ID, Name: models.AlertNewCountry, Description: "first"}
	saved, err := db.SaveLoginWithAlerts(ctx, newLogin(u.ID, ts, "evt-1", "Italy"), []*models.Alert{alert})
	if err != nil || !saved {
		t.Fatalf("first save: saved=%v err=%v", saved, err)
	}
	if alert.ID == 0 || alert.LoginID == nil {
		t.Errorf("alert not linked: %+v", alert)
	}

	dup := &models.Alert{UserID: u.ID, Name: models.AlertNewCountry, Description: "dup"}
	saved, err = db.SaveLoginWithAlerts(ctx, newLogin(u.ID, ts, "evt-1", "Italy"), []*models.Alert{dup})
	if err != nil {
		t.Fatal(err)
	}
	if saved {
		t.Error("duplicate event id should be skipped")
	}

	n, _ := db.CountLogins(ctx, u.ID)
	if n != 1 {
		t.Errorf("logins = %d, want 1", n)
	}
	alerts, _ := db.UserAlerts(ctx, u.ID)
	if len(alerts) != 1 || alerts[0].Description != "first" {
		t.Errorf("alerts = %+v", alerts)
	}

	// Without an event id the key falls back to timestamp and IP.
	noID := newLogin(u.ID, ts.Add(time.Hour), "", "Italy")
	if saved, _ := db.SaveLoginWithAlerts(ctx, noID, nil); !saved {
		t.Error("login without event id should be saved")
	}
	noID2 := newLogin(u.ID, ts.Add(time.Hour), "", "Italy")
	if saved, _ := db.SaveLoginWithAlerts(ctx, noID2, nil); saved {
		t.Error("same timestamp and ip should dedupe")
	}
}

func TestLoginsBefore(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	base := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	lat, lon := 45.46, 9.19
	first := newLogin(u.ID, base.Add(2*time.Hour), "b", "Italy")
	first.Latitude, first.Longitude = &lat, &lon
	second := newLogin(u.ID, base, "a", "France")
	failed := newLogin(u.ID, base.Add(time.Hour), "c", "Spain")
	failed.Status = models.LoginFailure
	late := newLogin(u.ID, base.Add(5*time.Hour), "d", "Italy")

	for _, l := range []*models.Login{first, second, failed, late} {
		if _, err := db.SaveLoginWithAlerts(ctx, l, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.LoginsBefore(ctx, u.ID, base.Add(5*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (failed and later logins excluded)", len(got))
	}
	if got[0].Country != "France" || got[1].Country != "Italy" {
		t.Errorf("order = %s, %s", got[0].Country, got[1].Country)
	}
	if got[0].HasCoordinates() || !got[1].HasCoordinates() || *got[1].Latitude != lat {
		t.Errorf("coordinates not round-tripped")
	}
	if !got[1].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("timestamp = %s", got[1].Timestamp)
	}
}

func TestNotificationClaim(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	a := &models.Alert{UserID: u.ID, Name: models.AlertNewDevice, LoginRawData: map[string]any{"ip": "1.2.3.4"}}
	if err := db.SaveAlert(ctx, a); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-10 * time.Minute)

	ok, err := db.ClaimNotification(ctx, a.ID, "slack", stale)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := db.ClaimNotification(ctx, a.ID, "slack", stale); ok {
		t.Error("second claim on a live lease must fail")
	}
	if ok, _ := db.ClaimNotification(ctx, a.ID, "telegram", stale); !ok {
		t.Error("channels are claimed independently")
	}

	if err := db.ReleaseNotification(ctx, a.ID, "telegram"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.ClaimNotification(ctx, a.ID, "telegram", stale); !ok {
		t.Error("released pair should be claimable")
	}

	if err := db.MarkNotified(ctx, a.ID, "slack"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.ClaimNotification(ctx, a.ID, "slack", time.Now().Add(time.Hour)); ok {
		t.Error("delivered pair must never be claimed again")
	}
	if err := db.MarkNotified(ctx, a.ID, "slack"); err == nil {
		t.Error("marking an unclaimed pair should fail")
	}

	got, err := db.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Notified("slack") || got.Notified("telegram") {
		t.Errorf("NotifiedStatus = %v", got.NotifiedStatus)
	}
	if got.LoginRawData["ip"] != "1.2.3.4" {
		t.Errorf("LoginRawData = %v", got.LoginRawData)
	}

	attempts, _ := db.NotificationAttempts(ctx, a.ID, "telegram")
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestNotificationClaim_StaleLease(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	a := &models.Alert{UserID: u.ID, Name: models.AlertNewDevice}
	if err := db.SaveAlert(ctx, a); err != nil {
		t.Fatal(err)
	}

	claimed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return claimed })
	if ok, _ := db.ClaimNotification(ctx, a.ID, "slack", claimed.Add(-10*time.Minute)); !ok {
		t.Fatal("first claim failed")
	}
	// A lease older than the stale cutoff is taken over.
	if ok, _ := db.ClaimNotification(ctx, a.ID, "slack", claimed.Add(time.Minute)); !ok {
		t.Error("stale lease should be reclaimed")
	}
}

func TestPendingAlerts(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	since := time.Now().Add(-time.Hour)

	delivered := &models.Alert{UserID: u.ID, Name: models.AlertImpossibleTravel, NotifiedStatus: map[string]bool{"slack": true}}
	filtered := &models.Alert{UserID: u.ID, Name: models.AlertNewCountry, FilterType: []models.FilterType{models.FilterIgnoredIPs}}
	fresh := &models.Alert{UserID: u.ID, Name: models.AlertNewDevice}
	for _, a := range []*models.Alert{delivered, filtered, fresh} {
		if err := db.SaveAlert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if !filtered.IsFiltered {
		t.Error("IsFiltered should follow FilterType")
	}

	slack, err := db.PendingAlerts(ctx, "slack", since, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(slack) != 1 || slack[0].ID != fresh.ID {
		t.Errorf("slack pending = %v", alertIDs(slack))
	}
	if slack[0].Username != "alice" {
		t.Errorf("Username = %q", slack[0].Username)
	}

	tg, _ := db.PendingAlerts(ctx, "telegram", since, 0)
	if len(tg) != 2 {
		t.Errorf("telegram pending = %v", alertIDs(tg))
	}

	old, _ := db.PendingAlerts(ctx, "telegram", time.Now().Add(time.Hour), 0)
	if len(old) != 0 {
		t.Errorf("alerts older than since must not be pending: %v", alertIDs(old))
	}
}

func alertIDs(alerts []*models.Alert) []int64 {
	out := make([]int64, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

func TestCountAlertsSince(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	old := time.Now().Add(-400 * 24 * time.Hour)

	for _, a := range []*models.Alert{
		{UserID: u.ID, Name: models.AlertNewDevice},
		{UserID: u.ID, Name: models.AlertImpossibleTravel},
		{UserID: u.ID, Name: models.AlertNewCountry},
		{UserID: u.ID, Name: models.AlertNewDevice, CreatedAt: old},
	} {
		if err := db.SaveAlert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	names := []models.AlertName{models.AlertNewDevice, models.AlertImpossibleTravel}
	n, err := db.CountAlertsSince(ctx, u.ID, names, time.Now().Add(-365*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if n, _ := db.CountAlertsSince(ctx, u.ID, nil, time.Time{}); n != 0 {
		t.Errorf("no names should count 0, got %d", n)
	}
}

func TestUserRisk(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	_, _ = db.GetOrCreateUser(ctx, "bob")

	if err := db.UpdateUserRisk(ctx, u.ID, models.RiskMedium, 3); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetUser(ctx, "alice")
	if got.RiskScore != models.RiskMedium || got.RiskValue != 3 {
		t.Errorf("user = %+v", got)
	}

	n, err := db.ResetRiskScore(ctx, "", models.RiskNone)
	if err != nil || n != 2 {
		t.Errorf("reset all: n=%d err=%v", n, err)
	}
	if _, err := db.ResetRiskScore(ctx, "carol", models.RiskLow); !IsNotFound(err) {
		t.Errorf("reset unknown user: %v", err)
	}
	users, _ := db.ListUsers(ctx)
	if len(users) != 2 || users[0].Username != "alice" || users[0].RiskScore != models.RiskNone {
		t.Errorf("users = %+v", users)
	}
}

func TestConfigRecord(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()

	cfg, found, err := db.LoadConfig(ctx)
	if err != nil || found {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}
	if cfg.VelAccepted != 300 {
		t.Errorf("defaults not returned: %+v", cfg)
	}

	cfg.IgnoredUsers = []string{"svc_.*"}
	cfg.AllowedCountries = []string{"Italy"}
	cfg.IgnoredImpTravelCountriesCouples = [][2]string{{"Italy", "France"}}
	if err := db.SaveConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	got, found, err := db.LoadConfig(ctx)
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if len(got.IgnoredUsers) != 1 || got.IgnoredImpTravelCountriesCouples[0][1] != "France" {
		t.Errorf("config = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestTaskSettings(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	if _, err := db.GetTask(ctx, models.TaskProcessLogs, models.ModeAutomatic); !IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}

	task := models.TaskSettings{
		TaskName:      models.TaskProcessLogs,
		ExecutionMode: models.ModeAutomatic,
		StartDate:     start,
		EndDate:       start.Add(30 * time.Minute),
	}
	if err := db.RecordTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	task.EndDate = start.Add(time.Hour)
	task.Status = models.TaskError
	task.ErrorReason = "boom"
	if err := db.RecordTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetTask(ctx, models.TaskProcessLogs, models.ModeAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if !got.EndDate.Equal(start.Add(time.Hour)) || got.Status != models.TaskError || got.ErrorReason != "boom" {
		t.Errorf("task = %+v", got)
	}
	if _, err := db.GetTask(ctx, models.TaskProcessLogs, models.ModeManual); !IsNotFound(err) {
		t.Error("modes are tracked separately")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()
	u, _ := db.GetOrCreateUser(ctx, "alice")
	a := &models.Alert{UserID: u.ID, Name: models.AlertNewDevice}
	if _, err := db.SaveLoginWithAlerts(ctx, newLogin(u.ID, time.Now(), "x", "Italy"), []*models.Alert{a}); err != nil {
		t.Fatal(err)
	}

	n, err := db.Clear(ctx, ModelUser)
	if err != nil || n != 1 {
		t.Fatalf("Clear(user): n=%d err=%v", n, err)
	}
	if c, _ := db.CountLogins(ctx, u.ID); c != 0 {
		t.Errorf("logins survived user deletion: %d", c)
	}
	if _, err := db.Clear(ctx, "planets"); err == nil {
		t.Error("unknown model should fail")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	t.Parallel()
	db := setupTestStore(t)
	ctx := context.Background()

	past := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return past })
	stale, _ := db.GetOrCreateUser(ctx, "stale")
	if _, err := db.SaveLoginWithAlerts(ctx, newLogin(stale.ID, past, "s1", "Italy"),
		[]*models.Alert{{UserID: stale.ID, Name: models.AlertNewDevice}}); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return now })
	active, _ := db.GetOrCreateUser(ctx, "active")
	if _, err := db.SaveLoginWithAlerts(ctx, newLogin(active.ID, now, "a1", "Italy"), nil); err != nil {
		t.Fatal(err)
	}

	cut := now.AddDate(0, 0, -365)
	res, err := db.DeleteOlderThan(ctx, Retention{Users: cut, Logins: cut, Alerts: cut})
	if err != nil {
		t.Fatal(err)
	}
	if res.Users != 1 || res.Logins != 1 || res.Alerts != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := db.GetUser(ctx, "active"); err != nil {
		t.Errorf("active user removed: %v", err)
	}
}
