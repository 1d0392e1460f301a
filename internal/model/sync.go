package model

import "time"

// SyncResultStatus is the outcome reported by a manual sync request.
type SyncResultStatus string

const (
	ResultSuccess        SyncResultStatus = "success"
	ResultPartialSuccess SyncResultStatus = "partial_success"
	ResultError          SyncResultStatus = "error"
	// ResultProcessing means the server accepted the request and will report
	// completion later through the push channel.
	ResultProcessing SyncResultStatus = "processing"
)

// Terminal reports whether the status settles the sync immediately.
func (s SyncResultStatus) Terminal() bool {
	return s == ResultSuccess || s == ResultPartialSuccess || s == ResultError
}

// SyncResult is the server's answer to a manual sync trigger.
type SyncResult struct {
	Status  SyncResultStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	Synced  int              `json:"synced,omitempty"`
	Failed  int              `json:"failed,omitempty"`
	JobID   string           `json:"job_id,omitempty"`
}

// SessionStatus is the client-side state of a manual sync.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionSyncing SessionStatus = "syncing"
	SessionSuccess SessionStatus = "success"
	SessionError   SessionStatus = "error"
)

// SyncSession is the ephemeral record of the current manual sync.
type SyncSession struct {
	ID        string        `json:"id,omitempty"`
	Status    SessionStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	EndedAt   time.Time     `json:"ended_at,omitzero"`
}
