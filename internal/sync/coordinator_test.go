package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/push"
	"github.com/njoerd114/availsync/internal/schedule"
)

// wednesday is 2025-03-05; its Monday week boundary is 2025-03-03.
var wednesday = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)

func newTestCoordinator(t *testing.T, events EventSource) (*Coordinator, *mockAPI, *schedule.Manual) {
	t.Helper()
	api := newMockAPI(1, 2, 3)
	sched := schedule.NewManual()
	c, err := NewCoordinator(api, &mockCache{}, events, Options{
		PropertyID: 12,
		WindowDays: 14,
		WeekStart:  time.Monday,
		Scheduler:  sched,
		Now:        func() time.Time { return wednesday },
	}, testLogger)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c, api, sched
}

func TestNewCoordinator_Validation(t *testing.T) {
	api := newMockAPI()
	if _, err := NewCoordinator(api, nil, nil, Options{}, testLogger); err == nil {
		t.Error("expected error for missing property id")
	}
	if _, err := NewCoordinator(api, nil, nil, Options{PropertyID: 1, FallbackSchedule: "every now and then"}, testLogger); err == nil {
		t.Error("expected error for bad cron spec")
	}
	c, err := NewCoordinator(api, nil, nil, Options{PropertyID: 1, FallbackSchedule: "@every 5m"}, testLogger)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if c.opts.Delays != DefaultDelays() || c.opts.WindowDays != 14 {
		t.Errorf("defaults not applied: %+v", c.opts)
	}
}

func TestCoordinator_InitialWindowIsWeekAligned(t *testing.T) {
	c, _, _ := newTestCoordinator(t, nil)
	w := c.Fetcher().Window()
	want := model.Window{From: model.NewDate(2025, time.March, 3), To: model.NewDate(2025, time.March, 16)}
	if w != want {
		t.Errorf("window = %v, want %v", w, want)
	}
}

func TestCoordinator_NavigateAndToday(t *testing.T) {
	c, api, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	snap, err := c.Navigate(ctx, model.Forward)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if got := snap.Window.From; got != model.NewDate(2025, time.March, 17) {
		t.Errorf("forward From = %s, want 2025-03-17", got)
	}

	if _, err := c.Navigate(ctx, model.Backward); err != nil {
		t.Fatalf("Navigate back: %v", err)
	}
	if _, err := c.Navigate(ctx, model.Backward); err != nil {
		t.Fatalf("Navigate back: %v", err)
	}
	if got := c.Fetcher().Window().From; got != model.NewDate(2025, time.February, 17) {
		t.Errorf("From = %s, want 2025-02-17", got)
	}

	snap, err = c.Today(ctx)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if got := snap.Window.From; got != model.NewDate(2025, time.March, 3) {
		t.Errorf("today From = %s, want 2025-03-03", got)
	}
	if fetches, _, _, _ := api.calls(); fetches != 4 {
		t.Errorf("fetches = %d, want one per navigation", fetches)
	}
}

func TestCoordinator_UpdateCellAndAvailabilityAt(t *testing.T) {
	c, _, sched := newTestCoordinator(t, nil)
	ctx := context.Background()
	if _, err := c.Fetch(ctx, FetchOptions{ShowLoading: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	d := model.NewDate(2025, time.March, 5)
	if err := c.UpdateCell(ctx, 2, d, model.FieldMinStay, 3.0); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}
	cell, ok := c.AvailabilityAt(2, d)
	if !ok || cell.MinStay != 3 {
		t.Errorf("cell = %+v, want min_stay 3", cell)
	}
	if sched.Pending() != 1 {
		t.Errorf("scheduled = %d, want 1 re-fetch", sched.Pending())
	}
}

func TestCoordinator_Status(t *testing.T) {
	events := newFakeEvents()
	c, api, _ := newTestCoordinator(t, events)
	api.set(func(m *mockAPI) { m.fetchErr = errors.New("boom") })
	_, _ = c.Fetch(context.Background(), FetchOptions{})

	st := c.Status()
	if st.Error == "" {
		t.Error("Status.Error should carry the fetch failure")
	}
	if st.Push != "disconnected" {
		t.Errorf("Push = %q, want disconnected", st.Push)
	}
	if st.Session.Status != model.SessionIdle {
		t.Errorf("Session = %q, want idle", st.Session.Status)
	}

	noPush, _, _ := newTestCoordinator(t, nil)
	if got := noPush.Status().Push; got != "disabled" {
		t.Errorf("Push without source = %q, want disabled", got)
	}
}

func TestCoordinator_FallbackRefresh(t *testing.T) {
	events := newFakeEvents()
	c, api, _ := newTestCoordinator(t, events)
	ctx := context.Background()

	events.setState(push.Connected)
	c.fallbackRefresh(ctx)
	if fetches, pending, _, _ := api.calls(); fetches != 0 || pending != 1 {
		t.Errorf("connected: fetches=%d pending=%d, want 0 and 1", fetches, pending)
	}

	events.setState(push.Disconnected)
	c.fallbackRefresh(ctx)
	if fetches, pending, _, _ := api.calls(); fetches != 1 || pending != 2 {
		t.Errorf("disconnected: fetches=%d pending=%d, want 1 and 2", fetches, pending)
	}
}

func TestCoordinator_RunHandlesPushEvents(t *testing.T) {
	events := newFakeEvents()
	c, api, _ := newTestCoordinator(t, events)
	api.set(func(m *mockAPI) { m.pendingCount = 4 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool {
		_, pending, _, _ := api.calls()
		return pending >= 2 // initial load + connect hook
	})
	if c.Pending().Count() != 4 {
		t.Errorf("pending = %d, want 4", c.Pending().Count())
	}

	events.send(event(model.EventSyncCompleted, `{"status":"success"}`))
	waitFor(t, func() bool { return c.Pending().Count() == 0 })
	waitFor(t, func() bool { return c.Trigger().Session().Status == model.SessionSuccess })

	if st := c.Status(); st.Push != "connected" || st.LastEventType != model.EventSyncCompleted {
		t.Errorf("status = %+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if c.refetch.Outstanding() != 0 {
		t.Errorf("outstanding re-fetches = %d after shutdown, want 0", c.refetch.Outstanding())
	}
	if fetches, _, _, _ := api.calls(); fetches < 1 {
		t.Error("Run should fetch the initial window")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
