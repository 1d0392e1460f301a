package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a push event.
type EventType string

const (
	EventSyncPendingUpdated  EventType = "sync_pending_updated"
	EventSyncCompleted       EventType = "sync_completed"
	EventBulkUpdateCompleted EventType = "bulk_update_completed"
	EventAvailabilityUpdated EventType = "availability_updated"
)

// Event is a server-initiated notification: {"type": ..., "data": ...}.
type Event struct {
	Type       EventType       `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// DecodeEvent parses a raw push frame. fallbackType is used when the frame
// body carries no type of its own (e.g. an SSE "event:" line named it).
func DecodeEvent(raw []byte, fallbackType string) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding push event: %w", err)
	}
	if ev.Type == "" {
		ev.Type = EventType(fallbackType)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decoding push event: missing type")
	}
	return ev, nil
}

// PendingUpdatedData is the payload of sync_pending_updated.
type PendingUpdatedData struct {
	Count     int               `json:"count"`
	ByScope   map[string]int    `json:"by_scope,omitempty"`
	DateRange *PendingDateRange `json:"date_range,omitempty"`
}

// SyncCompletedData is the payload of sync_completed.
type SyncCompletedData struct {
	Status  SyncResultStatus `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
	Synced  int              `json:"synced,omitempty"`
	JobID   string           `json:"job_id,omitempty"`
}

// AvailabilityUpdatedData is the payload of availability_updated and
// bulk_update_completed.
type AvailabilityUpdatedData struct {
	RoomIDs  []int64 `json:"room_ids,omitempty"`
	DateFrom Date    `json:"date_from,omitzero"`
	DateTo   Date    `json:"date_to,omitzero"`
}
