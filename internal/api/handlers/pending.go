package handlers

import (
	"net/http"

	"github.com/njoerd114/availsync/internal/api/middleware"
	"github.com/njoerd114/availsync/internal/model"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

type syncRequest struct {
	Async bool `json:"async"`
}

// GetPending returns the pending-sync state.
func GetPending(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Pending().State())
	}
}

// RefreshPending re-reads the pending count, and the date range when the
// count is non-zero.
func RefreshPending(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := c.Pending().RefreshCount(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Pending().State())
	}
}

// GetSyncSession returns the current manual sync session.
func GetSyncSession(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Trigger().Session())
	}
}

// TriggerSync starts a manual sync. The body is optional.
func TriggerSync(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if err := decodeBody(r, &req, true); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		session, err := c.Sync(r.Context(), req.Async)
		if err != nil {
			writeError(w, err)
			return
		}
		code := http.StatusOK
		if session.Status == model.SessionSyncing {
			code = http.StatusAccepted
		}
		writeJSON(w, code, session)
	}
}
