package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SyncStatus is the channel-distribution state reported for a cell.
type SyncStatus string

const (
	SyncConnected    SyncStatus = "connected"
	SyncSyncing      SyncStatus = "syncing"
	SyncPending      SyncStatus = "pending"
	SyncError        SyncStatus = "error"
	SyncDisconnected SyncStatus = "disconnected"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncConnected, SyncSyncing, SyncPending, SyncError, SyncDisconnected:
		return true
	}
	return false
}

// Cell is the availability, rate and restriction data for one room on one
// day. It is identified by (RoomID, Date).
type Cell struct {
	RoomID            int64      `json:"room_id"`
	RoomName          string     `json:"room_name,omitempty"`
	Date              Date       `json:"date"`
	Rate              *float64   `json:"rate,omitempty"`
	IsAvailable       bool       `json:"is_available"`
	IsBookable        bool       `json:"is_bookable"`
	MinStay           int        `json:"min_stay"`
	ClosedToArrival   bool       `json:"closed_to_arrival"`
	ClosedToDeparture bool       `json:"closed_to_departure"`
	SyncStatus        SyncStatus `json:"sync_status"`
	SyncPending       bool       `json:"sync_pending"`
	SyncError         string     `json:"sync_error,omitempty"`
	MappedChannels    []string   `json:"mapped_channels,omitempty"`
}

// CellKey addresses a single cell.
type CellKey struct {
	RoomID int64
	Date   Date
}

// Key returns the cell's address.
func (c Cell) Key() CellKey { return CellKey{RoomID: c.RoomID, Date: c.Date} }

// DaySummary aggregates the rooms of a single day.
type DaySummary struct {
	TotalRooms     int `json:"total_rooms"`
	AvailableRooms int `json:"available_rooms"`
	BlockedRooms   int `json:"blocked_rooms"`
}

// Day is one row of the calendar: every mapped room on a given date.
type Day struct {
	Date    Date       `json:"date"`
	Cells   []Cell     `json:"rooms"`
	Summary DaySummary `json:"summary"`

	// Verified is false for days retained from an earlier window that have
	// not been re-read from the server since the window moved.
	Verified bool `json:"verified"`
}

// Summarize recomputes the day summary from its cells.
func (d *Day) Summarize() {
	s := DaySummary{TotalRooms: len(d.Cells)}
	for _, c := range d.Cells {
		if c.IsAvailable {
			s.AvailableRooms++
		} else {
			s.BlockedRooms++
		}
	}
	d.Summary = s
}

// Statistics are aggregate sync figures for a snapshot.
type Statistics struct {
	TotalRecords  int     `json:"total_records"`
	SyncedRecords int     `json:"synced_records"`
	SyncRate      float64 `json:"sync_rate"`
	PendingSync   int     `json:"pending_sync"`
}

// ComputeStatistics derives statistics from days alone. SyncRate is a
// percentage in [0, 100]; an empty snapshot reports 0.
func ComputeStatistics(days []Day) Statistics {
	var st Statistics
	for _, d := range days {
		for _, c := range d.Cells {
			st.TotalRecords++
			if c.SyncPending {
				st.PendingSync++
			} else if c.SyncStatus == SyncConnected {
				st.SyncedRecords++
			}
		}
	}
	if st.TotalRecords > 0 {
		st.SyncRate = float64(st.SyncedRecords) / float64(st.TotalRecords) * 100
	}
	return st
}

// Snapshot is the authoritative calendar for one window and filter set.
// A snapshot is replaced wholesale on every successful fetch; callers must
// treat a *Snapshot obtained from the fetcher as read-only.
type Snapshot struct {
	Window     Window     `json:"window"`
	Filters    Filters    `json:"filters"`
	Days       []Day      `json:"days"`
	Statistics Statistics `json:"statistics"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Cell returns a copy of the cell for (roomID, date).
func (s *Snapshot) Cell(roomID int64, date Date) (Cell, bool) {
	if s == nil {
		return Cell{}, false
	}
	for _, d := range s.Days {
		if d.Date != date {
			continue
		}
		for _, c := range d.Cells {
			if c.RoomID == roomID {
				return c, true
			}
		}
		return Cell{}, false
	}
	return Cell{}, false
}

// RoomIDs returns the distinct room IDs in the snapshot, in first-seen order.
func (s *Snapshot) RoomIDs() []int64 {
	if s == nil {
		return nil
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, d := range s.Days {
		for _, c := range d.Cells {
			if !seen[c.RoomID] {
				seen[c.RoomID] = true
				ids = append(ids, c.RoomID)
			}
		}
	}
	return ids
}

// Clone returns a deep copy of s, so a patched copy can be swapped in without
// readers ever observing a partially modified snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Filters = s.Filters.clone()
	cp.Days = make([]Day, len(s.Days))
	for i, d := range s.Days {
		cp.Days[i] = d
		cp.Days[i].Cells = make([]Cell, len(d.Cells))
		for j, c := range d.Cells {
			if c.Rate != nil {
				r := *c.Rate
				c.Rate = &r
			}
			c.MappedChannels = append([]string(nil), c.MappedChannels...)
			cp.Days[i].Cells[j] = c
		}
	}
	return &cp
}

// --- Single-cell fields ------------------------------------------------------

// CellField names a field that can be edited on a single cell.
type CellField string

const (
	FieldRate              CellField = "rate"
	FieldIsAvailable       CellField = "is_available"
	FieldMinStay           CellField = "min_stay"
	FieldClosedToArrival   CellField = "closed_to_arrival"
	FieldClosedToDeparture CellField = "closed_to_departure"
)

var (
	// ErrUnknownField is returned for a field outside the editable set.
	ErrUnknownField = errors.New("unknown cell field")

	// ErrInvalidValue is returned when a value has the wrong type or range.
	ErrInvalidValue = errors.New("invalid cell value")
)

// NormalizeValue checks value against field and converts it to the canonical
// Go type: float64 for rate, int for min_stay, bool for the flags. JSON
// numbers (float64) are accepted for min_stay when integral.
func NormalizeValue(field CellField, value any) (any, error) {
	switch field {
	case FieldRate:
		f, ok := toFloat(value)
		if !ok || f < 0 {
			return nil, fmt.Errorf("%s=%v: %w", field, value, ErrInvalidValue)
		}
		return f, nil
	case FieldMinStay:
		f, ok := toFloat(value)
		if !ok || f < 1 || f != float64(int(f)) {
			return nil, fmt.Errorf("%s=%v: %w", field, value, ErrInvalidValue)
		}
		return int(f), nil
	case FieldIsAvailable, FieldClosedToArrival, FieldClosedToDeparture:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%s=%v: %w", field, value, ErrInvalidValue)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%q: %w", field, ErrUnknownField)
}

// Apply sets field on c to an already-normalised value.
func (c *Cell) Apply(field CellField, value any) error {
	v, err := NormalizeValue(field, value)
	if err != nil {
		return err
	}
	switch field {
	case FieldRate:
		r := v.(float64)
		c.Rate = &r
	case FieldMinStay:
		c.MinStay = v.(int)
	case FieldIsAvailable:
		c.IsAvailable = v.(bool)
	case FieldClosedToArrival:
		c.ClosedToArrival = v.(bool)
	case FieldClosedToDeparture:
		c.ClosedToDeparture = v.(bool)
	}
	return nil
}

// toFloat converts a numeric value. NaN and infinities are rejected.
func toFloat(v any) (float64, bool) {
	f, ok := asFloat(v)
	if !ok || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
