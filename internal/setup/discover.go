package setup

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/njoerd114/availsync/internal/model"
)

// Connector is the part of the channel-manager client the wizard uses.
// Implemented by [channelmanager.Client].
type Connector interface {
	Ping(ctx context.Context) error
	FetchCalendar(ctx context.Context, w model.Window, f model.Filters) (*model.Snapshot, error)
}

// Room is a room discovered from the calendar.
type Room struct {
	ID       int64
	Name     string
	Channels []string
}

// String returns a human-readable representation for prompts.
func (r Room) String() string {
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("room %d", r.ID)
	}
	if len(r.Channels) == 0 {
		return name + " (no channels mapped)"
	}
	return fmt.Sprintf("%s (%d channel(s))", name, len(r.Channels))
}

// DiscoverRooms fetches one week of the property's calendar starting at now
// and returns its rooms sorted by ID. An unknown property or one with no
// mapped rooms yields an empty list.
func DiscoverRooms(ctx context.Context, c Connector, propertyID int64, now time.Time) ([]Room, error) {
	w := model.NewWindow(model.DateOf(now), 7)
	snap, err := c.FetchCalendar(ctx, w, model.Filters{PropertyID: propertyID})
	if err != nil {
		return nil, fmt.Errorf("fetching calendar for property %d: %w", propertyID, err)
	}

	seen := make(map[int64]int)
	var rooms []Room
	for _, d := range snap.Days {
		for _, c := range d.Cells {
			i, ok := seen[c.RoomID]
			if !ok {
				seen[c.RoomID] = len(rooms)
				rooms = append(rooms, Room{ID: c.RoomID, Name: c.RoomName})
				i = len(rooms) - 1
			}
			for _, ch := range c.MappedChannels {
				if !slices.Contains(rooms[i].Channels, ch) {
					rooms[i].Channels = append(rooms[i].Channels, ch)
				}
			}
		}
	}
	slices.SortFunc(rooms, func(a, b Room) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return rooms, nil
}
