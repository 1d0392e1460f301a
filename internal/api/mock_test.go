package api

import (
	"context"
	"sync"

	"github.com/njoerd114/availsync/internal/model"
)

// --- Mock channel manager ----------------------------------------------------

type fakeAPI struct {
	mu sync.Mutex

	rooms        []int64
	updateErr    error
	bulkErr      error
	bulkPayloads []model.BulkPayload
	pendingCount int
	syncResult   model.SyncResult

	// When gate is set, FetchCalendar signals entered and blocks until
	// gate is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeAPI(rooms ...int64) *fakeAPI {
	return &fakeAPI{rooms: rooms, syncResult: model.SyncResult{Status: model.ResultSuccess}}
}

func (f *fakeAPI) FetchCalendar(_ context.Context, w model.Window, _ model.Filters) (*model.Snapshot, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	snap := &model.Snapshot{}
	for _, d := range w.Dates() {
		day := model.Day{Date: d}
		for _, id := range f.rooms {
			rate := 100.0
			day.Cells = append(day.Cells, model.Cell{
				RoomID:      id,
				Date:        d,
				Rate:        &rate,
				IsAvailable: true,
				IsBookable:  true,
				MinStay:     1,
				SyncStatus:  model.SyncConnected,
			})
		}
		day.Summarize()
		snap.Days = append(snap.Days, day)
	}
	return snap, nil
}

func (f *fakeAPI) UpdateCell(_ context.Context, _ int64, _ model.Date, _ model.CellField, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateErr
}

func (f *fakeAPI) BulkUpdate(_ context.Context, p model.BulkPayload) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	f.bulkPayloads = append(f.bulkPayloads, p)
	return p.Cells, nil
}

func (f *fakeAPI) PendingCount(_ context.Context, _ model.Scope) (model.PendingCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.PendingCount{Count: f.pendingCount}, nil
}

func (f *fakeAPI) PendingDateRange(_ context.Context, _ model.Scope) (*model.PendingDateRange, error) {
	return nil, nil
}

func (f *fakeAPI) TriggerSync(_ context.Context, _ model.Scope, _ bool) (model.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncResult, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
