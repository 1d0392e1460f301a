package model

// PendingDateRange is the contiguous span of dates still awaiting sync.
type PendingDateRange struct {
	From          Date `json:"from"`
	To            Date `json:"to"`
	RoomsAffected int  `json:"rooms_affected"`
}

// PendingState mirrors the server-side pending-sync backlog.
type PendingState struct {
	Count     int               `json:"count"`
	ByScope   map[string]int    `json:"by_scope,omitempty"`
	DateRange *PendingDateRange `json:"date_range,omitempty"`
}

// PendingCount is the server's answer to a pending-count query.
type PendingCount struct {
	Count   int            `json:"count"`
	ByScope map[string]int `json:"by_scope,omitempty"`
}
