// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/models"
	"github.com/tomtom215/buffalogs/internal/store"
)

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func saveAlert(t *testing.T, db *store.DB, username string, name models.AlertName, created time.Time, filters ...models.FilterType) *models.Alert {
	t.Helper()
	ctx := context.Background()
	u, err := db.GetOrCreateUser(ctx, username)
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	a := &models.Alert{
		UserID:      u.ID,
		Username:    username,
		Name:        name,
		Description: string(name) + " for " + username,
		FilterType:  filters,
		CreatedAt:   created,
	}
	if err := db.SaveAlert(ctx, a); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}
	return a
}

func testNotifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		ClaimTTL:    10 * time.Minute,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestDispatcher(t *testing.T, db *store.DB, notifiers ...Notifier) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(db, notifiers, nil, testNotifyConfig(), WithClock(nil, noSleep))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

// telegramServer accepts every sendMessage call and records the chat ids.
func telegramServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var chats []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req telegramRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		chats = append(chats, req.ChatID)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), chats...)
	}
}

func TestNewDispatcher_ChannelLimiters(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, openStore(t), newRecorder("slack"), newRecorder("telegram"))
	for _, name := range []string{"slack", "telegram"} {
		lim, ok := d.limiters[name]
		if !ok {
			t.Fatalf("no limiter for %s", name)
		}
		if lim.Limit() != 5 || lim.Burst() != 1 {
			t.Errorf("%s limiter = %v/s burst %d, want 5/s burst 1", name, lim.Limit(), lim.Burst())
		}
	}
}

func TestNotifyAlerts_PerChannelDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openStore(t)

	a := saveAlert(t, db, "alice", models.AlertNewDevice, time.Now().UTC().Add(-time.Minute))

	// already delivered on slack by an earlier run
	ok, err := db.ClaimNotification(ctx, a.ID, config.AlerterSlack, time.Now().Add(-time.Hour))
	if err != nil || !ok {
		t.Fatalf("ClaimNotification = %v, %v", ok, err)
	}
	if err := db.MarkNotified(ctx, a.ID, config.AlerterSlack); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	slackSrv := newCaptureServer(t)
	tgSrv, chats := telegramServer(t)
	slack := newSlack(slackConfig{webhookConfig: webhookConfig{WebhookURL: slackSrv.URL}}, nil)
	tg := newTelegram(telegramConfig{BotToken: "T", ChatIDs: []string{"1", "2"}, APIURL: tgSrv.URL})

	d := newTestDispatcher(t, db, slack, tg)
	rep, err := d.NotifyAlerts(ctx, models.ModeManual)
	if err != nil {
		t.Fatalf("NotifyAlerts: %v", err)
	}
	if rep.Delivered != 1 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if n := len(slackSrv.all()); n != 0 {
		t.Errorf("slack calls = %d, want 0", n)
	}
	if got := chats(); len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("telegram chats = %v, want [1 2]", got)
	}

	got, err := db.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if !got.NotifiedStatus[config.AlerterSlack] || !got.NotifiedStatus[config.AlerterTelegram] {
		t.Errorf("notified_status = %v", got.NotifiedStatus)
	}

	// nothing left to do
	if _, err := d.NotifyAlerts(ctx, models.ModeAutomatic); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := len(chats()); n != 2 {
		t.Errorf("telegram calls after second run = %d, want 2", n)
	}

	task, err := db.GetTask(ctx, models.TaskNotifyAlerts, models.ModeAutomatic)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != models.TaskOK {
		t.Errorf("task status = %s", task.Status)
	}
}

func TestNotifyAlerts_Clubbing(t *testing.T) {
	t.Parallel()
	db := openStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	saveAlert(t, db, "alice", models.AlertNewDevice, base)
	saveAlert(t, db, "bob", models.AlertNewDevice, base.Add(time.Minute))
	saveAlert(t, db, "alice", models.AlertNewDevice, base.Add(2*time.Minute))
	saveAlert(t, db, "alice", models.AlertNewCountry, base.Add(3*time.Minute))
	saveAlert(t, db, "carol", models.AlertNewDevice, base.Add(4*time.Minute), models.FilterIgnoredUsers)

	chat := newRecorder("chat")
	structured := perAlertRecorder{newRecorder("structured")}
	d := newTestDispatcher(t, db, chat, structured)

	rep, err := d.NotifyAlerts(context.Background(), models.ModeManual)
	if err != nil {
		t.Fatalf("NotifyAlerts: %v", err)
	}

	msgs := chat.sent()
	if len(msgs) != 3 {
		t.Fatalf("chat messages = %d, want 3", len(msgs))
	}
	if msgs[0].Username != "alice" || len(msgs[0].Alerts) != 2 || msgs[0].Title != "Login Anomaly Alert: New Device (2 alerts)" {
		t.Errorf("first message = %q with %d alerts", msgs[0].Title, len(msgs[0].Alerts))
	}
	if msgs[1].Username != "bob" || msgs[2].Name != models.AlertNewCountry {
		t.Errorf("order = %s/%s, %s/%s", msgs[1].Username, msgs[1].Name, msgs[2].Username, msgs[2].Name)
	}

	if n := len(structured.sent()); n != 4 {
		t.Errorf("structured messages = %d, want one per unfiltered alert", n)
	}
	for _, m := range append(msgs, structured.sent()...) {
		if m.Username == "carol" {
			t.Error("filtered alert was notified")
		}
	}
	if rep.Delivered != 8 {
		t.Errorf("delivered = %d, want 8", rep.Delivered)
	}
}

func TestNotifyAlerts_FailureStaysPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openStore(t)

	a := saveAlert(t, db, "alice", models.AlertImpossibleTravel, time.Now().UTC().Add(-time.Minute))

	flaky := newRecorder("flaky", transient(503, "down"), transient(503, "down"), transient(503, "down"))
	steady := newRecorder("steady")
	d := newTestDispatcher(t, db, flaky, steady)

	rep, err := d.NotifyAlerts(ctx, models.ModeManual)
	if err != nil {
		t.Fatalf("NotifyAlerts: %v", err)
	}
	if rep.Failed != 1 || rep.Delivered != 1 {
		t.Errorf("report = %+v", rep)
	}
	if n := len(flaky.sent()); n != 3 {
		t.Errorf("flaky attempts = %d, want 3", n)
	}

	pending, err := db.PendingAlerts(ctx, "flaky", time.Time{}, 0)
	if err != nil {
		t.Fatalf("PendingAlerts: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("pending on flaky = %d", len(pending))
	}
	if pending, _ := db.PendingAlerts(ctx, "steady", time.Time{}, 0); len(pending) != 0 {
		t.Errorf("pending on steady = %d", len(pending))
	}

	// the next run retries and succeeds
	rep, err = d.NotifyAlerts(ctx, models.ModeAutomatic)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Delivered != 1 {
		t.Errorf("second report = %+v", rep)
	}
	if n := len(steady.sent()); n != 1 {
		t.Errorf("steady messages = %d, want 1", n)
	}
	attempts, err := db.NotificationAttempts(ctx, a.ID, "flaky")
	if err != nil {
		t.Fatalf("NotificationAttempts: %v", err)
	}
	if attempts != 2 {
		t.Errorf("claims = %d, want 2", attempts)
	}
}

func TestNotifyAlerts_PermanentFailure(t *testing.T) {
	t.Parallel()
	db := openStore(t)
	saveAlert(t, db, "alice", models.AlertNewCountry, time.Now().UTC().Add(-time.Minute))

	broken := newRecorder("broken", permanent(404, "no such webhook"))
	d := newTestDispatcher(t, db, broken)

	rep, err := d.NotifyAlerts(context.Background(), models.ModeManual)
	if err != nil {
		t.Fatalf("send failures are not task errors: %v", err)
	}
	if rep.Failed != 1 || len(broken.sent()) != 1 {
		t.Errorf("report = %+v, attempts = %d", rep, len(broken.sent()))
	}
}

func TestNotifyAlerts_Lookback(t *testing.T) {
	t.Parallel()
	db := openStore(t)

	now := time.Now().UTC()
	saveAlert(t, db, "old", models.AlertNewDevice, now.Add(-72*time.Hour))
	saveAlert(t, db, "fresh", models.AlertNewDevice, now.Add(-time.Hour))

	rec := newRecorder("chat")
	cfg := testNotifyConfig()
	cfg.Lookback = 24 * time.Hour
	d, err := NewDispatcher(db, []Notifier{rec}, nil, cfg, WithClock(func() time.Time { return now }, noSleep))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NotifyAlerts(context.Background(), models.ModeManual); err != nil {
		t.Fatalf("NotifyAlerts: %v", err)
	}
	msgs := rec.sent()
	if len(msgs) != 1 || msgs[0].Username != "fresh" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestNotifyAlerts_ConcurrentRunsDeliverOnce(t *testing.T) {
	t.Parallel()
	db := openStore(t)
	for i := 0; i < 5; i++ {
		saveAlert(t, db, "user"+string(rune('a'+i)), models.AlertNewDevice, time.Now().UTC().Add(-time.Minute))
	}

	rec := newRecorder("chat")
	d1 := newTestDispatcher(t, db, rec)
	d2 := newTestDispatcher(t, db, rec)

	var wg sync.WaitGroup
	for _, d := range []*Dispatcher{d1, d2} {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			if _, err := d.NotifyAlerts(context.Background(), models.ModeAutomatic); err != nil {
				t.Errorf("NotifyAlerts: %v", err)
			}
		}(d)
	}
	wg.Wait()

	seen := make(map[int64]int)
	for _, m := range rec.sent() {
		for _, a := range m.Alerts {
			seen[a.ID]++
		}
	}
	if len(seen) != 5 {
		t.Errorf("alerts delivered = %d, want 5", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("alert %d delivered %d times", id, n)
		}
	}
}

func TestSendSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openStore(t)

	start := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	saveAlert(t, db, "alice", models.AlertNewDevice, start.Add(time.Hour))
	saveAlert(t, db, "alice", models.AlertImpossibleTravel, start.Add(2*time.Hour))
	saveAlert(t, db, "bob", models.AlertNewDevice, start.Add(3*time.Hour), models.FilterIgnoredIPs)
	saveAlert(t, db, "bob", models.AlertNewDevice, end.Add(time.Hour)) // outside

	chat := newRecorder("chat")
	failing := newRecorder("failing", permanent(401, "unauthorized"))
	d := newTestDispatcher(t, db, chat, failing)

	s, err := d.SendSummary(ctx, models.ModeManual, start, end)
	if err == nil {
		t.Error("expected the failing channel to be reported")
	}
	if s.Total != 3 || s.Filtered != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.ByName) != 2 || s.ByName[0].Key != string(models.AlertNewDevice) || s.ByName[0].Count != 2 {
		t.Errorf("by name = %+v", s.ByName)
	}

	msgs := chat.sent()
	if len(msgs) != 1 || msgs[0].Kind != KindSummary {
		t.Fatalf("chat messages = %+v", msgs)
	}
	if msgs[0].Title != "BuffaLogs Alert Summary: 2024-05-09 - 2024-05-10" {
		t.Errorf("title = %q", msgs[0].Title)
	}

	task, err := db.GetTask(ctx, models.TaskAlertSummary, models.ModeManual)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != models.TaskError || !task.StartDate.Equal(start) || !task.EndDate.Equal(end) {
		t.Errorf("task = %+v", task)
	}
}

func TestSendSummary_InvalidWindow(t *testing.T) {
	t.Parallel()
	db := openStore(t)
	d := newTestDispatcher(t, db, newRecorder("chat"))

	now := time.Now().UTC()
	_, err := d.SendSummary(context.Background(), models.ModeManual, now, now)
	var verr *config.ValidationError
	if !errors.As(err, &verr) || verr.Field != "window" {
		t.Errorf("err = %v, want window ValidationError", err)
	}
}
