// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/ingestion"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/store"
)

const chromeLinux = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/78.0.3904.108 Safari/537.36"

const firefoxWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"

// fakeSource serves canned records through the default ECS mapping.
type fakeSource struct {
	*ingestion.Normalizer

	mu         sync.Mutex
	users      []string
	logins     map[string][]ingestion.Raw
	usersErrs  []error
	loginErrs  map[string]error
	usersCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		Normalizer: ingestion.NewNormalizer("fake", nil),
		logins:     make(map[string][]ingestion.Raw),
		loginErrs:  make(map[string]error),
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) ProcessUsers(_ context.Context, _, _ time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usersCalls++
	if len(f.usersErrs) > 0 {
		err := f.usersErrs[0]
		f.usersErrs = f.usersErrs[1:]
		return nil, err
	}
	return f.users, nil
}

func (f *fakeSource) ProcessUserLogins(_ context.Context, start, end time.Time, username string) ([]ingestion.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loginErrs[username]; err != nil {
		return nil, err
	}
	var out []ingestion.Raw
	for _, r := range f.logins[username] {
		ts, _ := time.Parse(time.RFC3339, r["@timestamp"].(string))
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) add(username string, r ingestion.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.logins[username]; !ok {
		f.users = append(f.users, username)
	}
	f.logins[username] = append(f.logins[username], r)
}

func record(user, ts, ip, country string, lat, lon float64, ua, id string) ingestion.Raw {
	return ingestion.Raw{
		"@timestamp":              ts,
		"user.name":               user,
		"source.ip":               ip,
		"source.geo.country_name": country,
		"source.geo.location.lat": lat,
		"source.geo.location.lon": lon,
		"user_agent.original":     ua,
		"event.outcome":           "success",
		"_id":                     id,
		"_index":                  "cloud-test",
	}
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Interval:         30 * time.Minute,
		MaxWindows:       6,
		MaxLag:           24 * time.Hour,
		SafetyDelay:      time.Minute,
		Workers:          4,
		IngestRetries:    3,
		IngestRetryDelay: time.Second,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func setup(t *testing.T, src *fakeSource, mutate func(*models.Config)) (*Orchestrator, *store.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if mutate != nil {
		cfg := models.DefaultConfig()
		mutate(&cfg)
		if err := db.SaveConfig(ctx, cfg); err != nil {
			t.Fatalf("SaveConfig: %v", err)
		}
	}
	source := func(context.Context) (ingestion.Source, error) { return src, nil }
	return New(db, source, testPipelineConfig(), WithClock(nil, noSleep)), db
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func userAlertNames(t *testing.T, db *store.DB, username string) []models.AlertName {
	t.Helper()
	ctx := context.Background()
	u, err := db.GetUser(ctx, username)
	if err != nil {
		t.Fatalf("GetUser(%s): %v", username, err)
	}
	alerts, err := db.UserAlerts(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserAlerts: %v", err)
	}
	names := make([]models.AlertName, 0, len(alerts))
	for _, a := range alerts {
		names = append(names, a.Name)
	}
	return names
}

func sameNames(got, want []models.AlertName) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[models.AlertName]int, len(got))
	for _, n := range got {
		seen[n]++
	}
	for _, n := range want {
		seen[n]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestExecProcessLogs_FirstLogin(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("testuser", record("TestUser", "2023-03-08T17:08:33Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "e1"))
	o, db := setup(t, src, nil)
	ctx := context.Background()

	rep, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z"))
	if err != nil {
		t.Fatalf("ExecProcessLogs: %v", err)
	}
	if rep.Users != 1 || rep.Logins != 1 || rep.Alerts != 2 {
		t.Errorf("report = %+v", rep)
	}

	want := []models.AlertName{models.AlertNewDevice, models.AlertNewCountry}
	if got := userAlertNames(t, db, "testuser"); !sameNames(got, want) {
		t.Errorf("alerts = %v, want %v", got, want)
	}

	task, err := db.GetTask(ctx, models.TaskProcessLogs, models.ModeManual)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != models.TaskOK || !task.EndDate.Equal(mustTime(t, "2023-03-08T17:30:00Z")) {
		t.Errorf("task = %+v", task)
	}
}

func TestExecProcessLogs_ImpossibleTravelWithinWindow(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("bob", record("bob", "2023-03-08T17:00:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "b1"))
	src.add("bob", record("bob", "2023-03-08T17:10:00Z", "5.6.7.8", "United States", 40.71, -74.00, chromeLinux, "b2"))
	o, db := setup(t, src, nil)

	if _, err := o.ExecProcessLogs(context.Background(), mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err != nil {
		t.Fatalf("ExecProcessLogs: %v", err)
	}

	want := []models.AlertName{
		models.AlertNewDevice, models.AlertNewCountry, // first login
		models.AlertImpossibleTravel, models.AlertNewCountry, // second login
	}
	if got := userAlertNames(t, db, "bob"); !sameNames(got, want) {
		t.Errorf("alerts = %v, want %v", got, want)
	}
}

func TestExecProcessLogs_AtypicalCountryAcrossWindows(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("sam", record("sam", "2023-03-08T17:08:33Z", "1.2.3.4", "Sudan", 15.50, 32.56, chromeLinux, "s1"))
	src.add("sam", record("sam", "2024-05-01T00:00:00Z", "1.2.3.4", "Sudan", 15.50, 32.56, chromeLinux, "s2"))
	o, db := setup(t, src, func(c *models.Config) { c.AtypicalCountryDays = 60 })
	ctx := context.Background()

	if _, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err != nil {
		t.Fatalf("first window: %v", err)
	}
	if _, err := o.ExecProcessLogs(ctx, mustTime(t, "2024-04-30T23:45:00Z"), mustTime(t, "2024-05-01T00:15:00Z")); err != nil {
		t.Fatalf("second window: %v", err)
	}

	want := []models.AlertName{models.AlertNewDevice, models.AlertNewCountry, models.AlertAtypicalCountry}
	if got := userAlertNames(t, db, "sam"); !sameNames(got, want) {
		t.Errorf("alerts = %v, want %v", got, want)
	}
}

func TestExecProcessLogs_Dedupe(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("alice", record("alice", "2023-03-08T17:08:33Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "a1"))
	o, db := setup(t, src, nil)
	ctx := context.Background()
	start, end := mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")

	if _, err := o.ExecProcessLogs(ctx, start, end); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rep, err := o.ExecProcessLogs(ctx, start, end)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Duplicates != 1 || rep.Logins != 0 || rep.Alerts != 0 {
		t.Errorf("second report = %+v", rep)
	}
	if got := userAlertNames(t, db, "alice"); len(got) != 2 {
		t.Errorf("alerts after rerun = %v", got)
	}
}

func TestExecProcessLogs_IgnoredUsersAndIPs(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("svc-backup", record("svc-backup", "2023-03-08T17:01:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "i1"))
	src.add("carol", record("carol", "2023-03-08T17:02:00Z", "10.1.2.3", "Italy", 44.49, 11.34, chromeLinux, "i2"))
	src.add("carol", record("carol", "2023-03-08T17:03:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "i3"))
	o, db := setup(t, src, func(c *models.Config) {
		c.IgnoredUsers = []string{"svc-.*"}
		c.IgnoredIPs = []string{"10.0.0.0/8"}
	})
	ctx := context.Background()

	rep, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z"))
	if err != nil {
		t.Fatalf("ExecProcessLogs: %v", err)
	}
	if rep.Ignored != 2 || rep.Logins != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := db.GetUser(ctx, "svc-backup"); !store.IsNotFound(err) {
		t.Errorf("ignored user was stored: %v", err)
	}
	carol, err := db.GetUser(ctx, "carol")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if n, _ := db.CountLogins(ctx, carol.ID); n != 1 {
		t.Errorf("carol logins = %d, want 1", n)
	}
}

func TestExecProcessLogs_FailedLoginsSkipDetection(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	failed := record("dave", "2023-03-08T17:01:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "f1")
	failed["event.outcome"] = "failure"
	src.add("dave", failed)
	src.add("dave", record("dave", "2023-03-08T17:05:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "f2"))
	o, db := setup(t, src, nil)
	ctx := context.Background()

	if _, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err != nil {
		t.Fatalf("ExecProcessLogs: %v", err)
	}
	dave, err := db.GetUser(ctx, "dave")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if n, _ := db.CountLogins(ctx, dave.ID); n != 2 {
		t.Errorf("logins = %d, want 2", n)
	}
	// the failed login is not history, so the success is still new
	want := []models.AlertName{models.AlertNewDevice, models.AlertNewCountry}
	if got := userAlertNames(t, db, "dave"); !sameNames(got, want) {
		t.Errorf("alerts = %v, want %v", got, want)
	}
}

func TestExecProcessLogs_UserEnumerationRetry(t *testing.T) {
	t.Parallel()

	transient := &ingestion.IngestError{Source: "fake", Op: "users", Retryable: true, Err: errors.New("timeout")}

	t.Run("recovers", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource()
		src.usersErrs = []error{transient, transient}
		o, _ := setup(t, src, nil)

		if _, err := o.ExecProcessLogs(context.Background(), mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err != nil {
			t.Fatalf("ExecProcessLogs: %v", err)
		}
		if src.usersCalls != 3 {
			t.Errorf("calls = %d, want 3", src.usersCalls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource()
		src.usersErrs = []error{transient, transient, transient, transient}
		o, db := setup(t, src, nil)
		ctx := context.Background()

		_, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z"))
		if !ingestion.IsRetryable(err) {
			t.Fatalf("err = %v, want retryable IngestError", err)
		}
		if src.usersCalls != 3 {
			t.Errorf("calls = %d, want 3", src.usersCalls)
		}
		task, err := db.GetTask(ctx, models.TaskProcessLogs, models.ModeManual)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Status != models.TaskError || task.ErrorReason == "" {
			t.Errorf("task = %+v", task)
		}
	})

	t.Run("fatal is not retried", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource()
		src.usersErrs = []error{&ingestion.IngestError{Source: "fake", Op: "users", StatusCode: 401, Err: errors.New("unauthorized")}}
		o, _ := setup(t, src, nil)

		if _, err := o.ExecProcessLogs(context.Background(), mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err == nil {
			t.Fatal("expected error")
		}
		if src.usersCalls != 1 {
			t.Errorf("calls = %d, want 1", src.usersCalls)
		}
	})
}

func TestExecProcessLogs_UserErrors(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("erin", record("erin", "2023-03-08T17:01:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "u1"))
	src.add("frank", record("frank", "2023-03-08T17:02:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "u2"))
	src.loginErrs["erin"] = &ingestion.IngestError{Source: "fake", Op: "logins", Retryable: true, Err: errors.New("503")}
	o, db := setup(t, src, nil)
	ctx := context.Background()

	rep, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z"))
	if err != nil {
		t.Fatalf("ExecProcessLogs: %v", err)
	}
	if rep.Skipped != 1 || rep.Users != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := db.GetUser(ctx, "frank"); err != nil {
		t.Errorf("frank not processed: %v", err)
	}

	src.loginErrs["erin"] = errors.New("malformed response")
	if _, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err == nil {
		t.Error("expected a non-retryable user error to abort the window")
	}
}

func TestExecProcessLogs_InvalidWindow(t *testing.T) {
	t.Parallel()

	o, _ := setup(t, newFakeSource(), nil)
	ts := mustTime(t, "2023-03-08T17:00:00Z")
	_, err := o.ExecProcessLogs(context.Background(), ts, ts)
	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestExecProcessLogs_SourceConfigError(t *testing.T) {
	t.Parallel()

	db, err := store.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfgErr := &config.ConfigError{Source: "ingestion.json", Reason: "unsupported source"}
	o := New(db, func(context.Context) (ingestion.Source, error) { return nil, cfgErr }, testPipelineConfig())

	_, err = o.ExecProcessLogs(context.Background(), mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z"))
	if !errors.As(err, new(*config.ConfigError)) {
		t.Errorf("err = %v, want ConfigError", err)
	}
}

func TestProcessLogs_CatchUp(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2024-06-01T12:00:00Z")
	clock := func() time.Time { return now }

	tests := []struct {
		name     string
		last     *models.TaskSettings
		windows  int
		firstAt  time.Time
		lastEnds time.Time
	}{
		{
			name:     "first run",
			windows:  1,
			firstAt:  mustTime(t, "2024-06-01T11:29:00Z"),
			lastEnds: mustTime(t, "2024-06-01T11:59:00Z"),
		},
		{
			name:     "two hours behind",
			last:     &models.TaskSettings{StartDate: mustTime(t, "2024-06-01T09:30:00Z"), EndDate: mustTime(t, "2024-06-01T10:00:00Z"), Status: models.TaskOK},
			windows:  3,
			firstAt:  mustTime(t, "2024-06-01T10:00:00Z"),
			lastEnds: mustTime(t, "2024-06-01T11:30:00Z"),
		},
		{
			name:     "capped at max windows",
			last:     &models.TaskSettings{StartDate: mustTime(t, "2024-06-01T01:30:00Z"), EndDate: mustTime(t, "2024-06-01T02:00:00Z"), Status: models.TaskOK},
			windows:  6,
			firstAt:  mustTime(t, "2024-06-01T02:00:00Z"),
			lastEnds: mustTime(t, "2024-06-01T05:00:00Z"),
		},
		{
			name:     "failed window is retried",
			last:     &models.TaskSettings{StartDate: mustTime(t, "2024-06-01T11:00:00Z"), EndDate: mustTime(t, "2024-06-01T11:30:00Z"), Status: models.TaskError},
			windows:  1,
			firstAt:  mustTime(t, "2024-06-01T11:00:00Z"),
			lastEnds: mustTime(t, "2024-06-01T11:30:00Z"),
		},
		{
			name:     "too old",
			last:     &models.TaskSettings{StartDate: mustTime(t, "2024-05-29T09:30:00Z"), EndDate: mustTime(t, "2024-05-29T10:00:00Z"), Status: models.TaskOK},
			windows:  1,
			firstAt:  mustTime(t, "2024-06-01T11:29:00Z"),
			lastEnds: mustTime(t, "2024-06-01T11:59:00Z"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := newFakeSource()
			o, db := setup(t, src, nil)
			o.now = clock
			ctx := context.Background()

			if tt.last != nil {
				last := *tt.last
				last.TaskName = models.TaskProcessLogs
				last.ExecutionMode = models.ModeAutomatic
				if err := db.RecordTask(ctx, last); err != nil {
					t.Fatalf("RecordTask: %v", err)
				}
			}

			windows, err := o.pendingWindows(ctx)
			if err != nil {
				t.Fatalf("pendingWindows: %v", err)
			}
			if len(windows) != tt.windows {
				t.Fatalf("windows = %d, want %d", len(windows), tt.windows)
			}
			if !windows[0][0].Equal(tt.firstAt) || !windows[len(windows)-1][1].Equal(tt.lastEnds) {
				t.Errorf("windows = %v", windows)
			}

			rep, err := o.ProcessLogs(ctx)
			if err != nil {
				t.Fatalf("ProcessLogs: %v", err)
			}
			if rep.Windows != tt.windows {
				t.Errorf("report windows = %d, want %d", rep.Windows, tt.windows)
			}
			task, err := db.GetTask(ctx, models.TaskProcessLogs, models.ModeAutomatic)
			if err != nil {
				t.Fatalf("GetTask: %v", err)
			}
			if !task.EndDate.Equal(tt.lastEnds) || task.Status != models.TaskOK {
				t.Errorf("task = %+v", task)
			}
		})
	}
}

const safariMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"

func TestExecProcessLogs_RiskRaisedWithinWindow(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add("zoe", record("zoe", "2023-03-08T17:01:00Z", "1.2.3.4", "Italy", 44.49, 11.34, chromeLinux, "z1"))
	src.add("zoe", record("zoe", "2023-03-08T17:11:00Z", "1.2.3.4", "Italy", 44.49, 11.34, firefoxWindows, "z2"))
	src.add("zoe", record("zoe", "2023-03-08T17:21:00Z", "1.2.3.4", "Italy", 44.49, 11.34, safariMac, "z3"))
	o, db := setup(t, src, nil)
	ctx := context.Background()

	// one earlier New Device alert puts zoe at Low
	user, err := db.GetOrCreateUser(ctx, "zoe")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	prior := &models.Alert{UserID: user.ID, Name: models.AlertNewDevice, Description: "earlier", LoginRawData: map[string]any{"ip": "5.6.7.8"}}
	if err := db.SaveAlert(ctx, prior); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}
	if err := db.UpdateUserRisk(ctx, user.ID, models.RiskLow, 1); err != nil {
		t.Fatalf("UpdateUserRisk: %v", err)
	}

	if _, err := o.ExecProcessLogs(ctx, mustTime(t, "2023-03-08T17:00:00Z"), mustTime(t, "2023-03-08T17:30:00Z")); err != nil {
		t.Fatalf("ExecProcessLogs: %v", err)
	}

	alerts, err := db.UserAlerts(ctx, user.ID)
	if err != nil {
		t.Fatalf("UserAlerts: %v", err)
	}
	// New Device of z1 counts 2 (Low) and is filtered like the New Country
	// alert after it; z2 reaches 3 (Medium) and z3 counts 4.
	type outcome struct {
		name     models.AlertName
		filtered bool
	}
	want := []outcome{
		{models.AlertNewDevice, false}, // prior, never filtered
		{models.AlertNewDevice, true},
		{models.AlertNewCountry, true},
		{models.AlertNewDevice, false},
		{models.AlertNewDevice, false},
		{models.AlertUserRiskThreshold, false},
	}
	if len(alerts) != len(want) {
		t.Fatalf("alerts = %d, want %d", len(alerts), len(want))
	}
	for i, a := range alerts {
		if a.Name != want[i].name || a.IsFiltered != want[i].filtered {
			t.Errorf("alert %d = %s filtered=%v %v, want %s filtered=%v",
				i, a.Name, a.IsFiltered, a.FilterType, want[i].name, want[i].filtered)
		}
	}

	got, err := db.GetUser(ctx, "zoe")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.RiskScore != models.RiskMedium || got.RiskValue != 4 {
		t.Errorf("risk = %s/%d, want Medium/4", got.RiskScore, got.RiskValue)
	}
}

func TestUpdateRiskLevel(t *testing.T) {
	t.Parallel()

	o, db := setup(t, newFakeSource(), nil)
	ctx := context.Background()

	user, err := db.GetOrCreateUser(ctx, "grace")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	names := []models.AlertName{models.AlertNewDevice, models.AlertImpossibleTravel, models.AlertNewDevice, models.AlertNewCountry}
	for _, n := range names {
		a := &models.Alert{UserID: user.ID, Name: n, Description: string(n), LoginRawData: map[string]any{"ip": "1.2.3.4"}}
		if err := db.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert: %v", err)
		}
	}

	if err := o.UpdateRiskLevel(ctx); err != nil {
		t.Fatalf("UpdateRiskLevel: %v", err)
	}
	got, err := db.GetUser(ctx, "grace")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	// New Country does not raise the score by default
	if got.RiskScore != models.RiskMedium || got.RiskValue != 3 {
		t.Errorf("risk = %s/%d, want Medium/3", got.RiskScore, got.RiskValue)
	}

	alerts := userAlertNames(t, db, "grace")
	if alerts[len(alerts)-1] != models.AlertUserRiskThreshold {
		t.Errorf("alerts = %v, want a trailing User Risk Threshold", alerts)
	}

	// unchanged band, no second threshold alert
	if err := o.UpdateRiskLevel(ctx, "grace"); err != nil {
		t.Fatalf("UpdateRiskLevel: %v", err)
	}
	if again := userAlertNames(t, db, "grace"); len(again) != len(alerts) {
		t.Errorf("alerts = %v after a second update", again)
	}
}

func TestCleanModels(t *testing.T) {
	t.Parallel()

	o, db := setup(t, newFakeSource(), nil)
	ctx := context.Background()

	db.SetClock(func() time.Time { return time.Now().AddDate(-2, 0, 0) })
	if _, err := db.GetOrCreateUser(ctx, "stale"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	db.SetClock(time.Now)
	if _, err := db.GetOrCreateUser(ctx, "fresh"); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	res, err := o.CleanModels(ctx, models.ModeManual)
	if err != nil {
		t.Fatalf("CleanModels: %v", err)
	}
	if res.Users != 1 {
		t.Errorf("deleted users = %d, want 1", res.Users)
	}
	if _, err := db.GetUser(ctx, "fresh"); err != nil {
		t.Errorf("fresh user removed: %v", err)
	}
	if _, err := db.GetTask(ctx, models.TaskCleanModels, models.ModeManual); err != nil {
		t.Errorf("task not recorded: %v", err)
	}
}
