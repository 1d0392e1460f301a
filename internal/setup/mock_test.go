package setup

import (
	"context"
	"errors"

	"github.com/njoerd114/availsync/internal/model"
)

// fakeConnector serves a calendar with rooms only for knownProperty.
type fakeConnector struct {
	pingErr       error
	knownProperty int64
	fetched       []int64
}

func (f *fakeConnector) Ping(context.Context) error { return f.pingErr }

func (f *fakeConnector) FetchCalendar(_ context.Context, w model.Window, filters model.Filters) (*model.Snapshot, error) {
	f.fetched = append(f.fetched, filters.PropertyID)
	if filters.PropertyID < 0 {
		return nil, errors.New("boom")
	}
	snap := &model.Snapshot{Window: w}
	if filters.PropertyID != f.knownProperty {
		return snap, nil
	}
	for _, d := range w.Dates() {
		snap.Days = append(snap.Days, model.Day{Date: d, Cells: []model.Cell{
			{RoomID: 20, RoomName: "Sea View", Date: d, MappedChannels: []string{"booking", "expedia"}},
			{RoomID: 10, RoomName: "Garden", Date: d, MappedChannels: []string{"booking"}},
		}})
	}
	return snap, nil
}
