package sync

import (
	"context"
	"sync"

	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/push"
)

// --- Mock channel manager ----------------------------------------------------

type cellUpdate struct {
	RoomID int64
	Date   model.Date
	Field  model.CellField
	Value  any
}

type mockAPI struct {
	mu sync.Mutex

	rooms      []int64
	rate       float64
	pendingSet bool // cells come back sync_pending
	fetchErr   error
	fetchCalls int
	fetchHook  func(call int) // runs outside the lock before FetchCalendar returns

	updateErr error
	updates   []cellUpdate
	onUpdate  func() // runs outside the lock while the edit is "in flight"

	bulkErr      error
	bulkPayloads []model.BulkPayload

	pendingCount int
	pendingErr   error
	pendingCalls int
	dateRange    *model.PendingDateRange
	rangeCalls   int

	syncResult model.SyncResult
	syncErr    error
	syncCalls  int
	syncAsync  []bool
}

func newMockAPI(rooms ...int64) *mockAPI {
	return &mockAPI{rooms: rooms, rate: 100, syncResult: model.SyncResult{Status: model.ResultSuccess}}
}

func (m *mockAPI) FetchCalendar(_ context.Context, w model.Window, _ model.Filters) (*model.Snapshot, error) {
	m.mu.Lock()
	m.fetchCalls++
	call := m.fetchCalls
	err := m.fetchErr
	snap := buildSnapshot(w, m.rooms, m.rate, m.pendingSet)
	hook := m.fetchHook
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (m *mockAPI) UpdateCell(_ context.Context, roomID int64, date model.Date, field model.CellField, value any) error {
	m.mu.Lock()
	hook := m.onUpdate
	err := m.updateErr
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	m.updates = append(m.updates, cellUpdate{RoomID: roomID, Date: date, Field: field, Value: value})
	return nil
}

func (m *mockAPI) BulkUpdate(_ context.Context, p model.BulkPayload) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkErr != nil {
		return 0, m.bulkErr
	}
	m.bulkPayloads = append(m.bulkPayloads, p)
	return p.Cells, nil
}

func (m *mockAPI) PendingCount(_ context.Context, _ model.Scope) (model.PendingCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCalls++
	if m.pendingErr != nil {
		return model.PendingCount{}, m.pendingErr
	}
	return model.PendingCount{Count: m.pendingCount}, nil
}

func (m *mockAPI) PendingDateRange(_ context.Context, _ model.Scope) (*model.PendingDateRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rangeCalls++
	if m.dateRange == nil {
		return nil, nil
	}
	r := *m.dateRange
	return &r, nil
}

func (m *mockAPI) TriggerSync(_ context.Context, _ model.Scope, async bool) (model.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCalls++
	m.syncAsync = append(m.syncAsync, async)
	if m.syncErr != nil {
		return model.SyncResult{}, m.syncErr
	}
	return m.syncResult, nil
}

func (m *mockAPI) set(fn func(m *mockAPI)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockAPI) calls() (fetch, pending, dateRange, syncs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.pendingCalls, m.rangeCalls, m.syncCalls
}

func buildSnapshot(w model.Window, rooms []int64, rate float64, pending bool) *model.Snapshot {
	snap := &model.Snapshot{}
	for _, d := range w.Dates() {
		day := model.Day{Date: d}
		for _, id := range rooms {
			r := rate
			c := model.Cell{
				RoomID:      id,
				Date:        d,
				Rate:        &r,
				IsAvailable: true,
				IsBookable:  true,
				MinStay:     1,
				SyncStatus:  model.SyncConnected,
			}
			if pending {
				c.SyncStatus = model.SyncPending
				c.SyncPending = true
			}
			day.Cells = append(day.Cells, c)
		}
		day.Summarize()
		snap.Days = append(snap.Days, day)
	}
	return snap
}

// --- Mock snapshot cache -----------------------------------------------------

type mockCache struct {
	mu          sync.Mutex
	saved       int
	markedFor   []model.Window
	cachedDays  []model.Day
	lastSavedID int64
}

func (c *mockCache) SaveSnapshot(_ context.Context, propertyID int64, _ *model.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved++
	c.lastSavedID = propertyID
	return nil
}

func (c *mockCache) MarkUnverifiedOutside(_ context.Context, _ int64, w model.Window) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markedFor = append(c.markedFor, w)
	return 1, nil
}

func (c *mockCache) LoadWindow(_ context.Context, _ int64, _ model.Window) ([]model.Day, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedDays, nil
}

// --- Fake push channel -------------------------------------------------------

type fakeEvents struct {
	ch chan model.Event

	mu      sync.Mutex
	hooks   []func()
	state   push.State
	last    model.Event
	hasLast bool
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{ch: make(chan model.Event, 8)}
}

func (f *fakeEvents) Events() <-chan model.Event { return f.ch }

func (f *fakeEvents) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *fakeEvents) Run(ctx context.Context) error {
	f.mu.Lock()
	f.state = push.Connected
	hooks := append([]func(){}, f.hooks...)
	f.mu.Unlock()
	for _, h := range hooks {
		h()
	}
	<-ctx.Done()
	f.setState(push.Disconnected)
	return ctx.Err()
}

func (f *fakeEvents) State() push.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEvents) LastEvent() (model.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

func (f *fakeEvents) setState(s push.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeEvents) send(ev model.Event) {
	f.mu.Lock()
	f.last, f.hasLast = ev, true
	f.mu.Unlock()
	f.ch <- ev
}
