package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Filters narrow a calendar fetch.
type Filters struct {
	PropertyID int64      `json:"property_id,omitempty"`
	RoomIDs    []int64    `json:"room_ids,omitempty"`
	SyncStatus SyncStatus `json:"sync_status,omitempty"`
	Search     string     `json:"search,omitempty"`
}

func (f Filters) clone() Filters {
	f.RoomIDs = append([]int64(nil), f.RoomIDs...)
	return f
}

// Signature returns a deterministic SHA-256 hex digest of the window and
// filters. Room order and surrounding whitespace in the search text do not
// affect it, so reactive triggers that produce equivalent inputs collapse
// into one fetch.
func Signature(w Window, f Filters) string {
	rooms := slices.Clone(f.RoomIDs)
	slices.Sort(rooms)
	rooms = slices.Compact(rooms)

	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s|%s|%d|", w.From, w.To, f.PropertyID)
	for i, id := range rooms {
		if i > 0 {
			h.Write([]byte(","))
		}
		_, _ = fmt.Fprintf(h, "%d", id)
	}
	h.Write([]byte("|"))
	h.Write([]byte(f.SyncStatus))
	h.Write([]byte("|"))
	h.Write([]byte(strings.TrimSpace(f.Search)))
	return hex.EncodeToString(h.Sum(nil))
}

// Scope selects the records a pending-count or manual sync applies to.
type Scope struct {
	PropertyID int64   `json:"property_id,omitempty"`
	RoomIDs    []int64 `json:"room_ids,omitempty"`
}
