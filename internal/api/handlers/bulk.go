package handlers

import (
	"net/http"

	"github.com/njoerd114/availsync/internal/api/middleware"
	"github.com/njoerd114/availsync/internal/model"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

type openBulkRequest struct {
	RoomIDs []int64 `json:"room_ids"`
}

// BulkExecuteResponse reports how many cells a bulk edit changed.
type BulkExecuteResponse struct {
	Updated int `json:"updated"`
}

// GetBulk returns the wizard state.
func GetBulk(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Bulk().State())
	}
}

// OpenBulk opens the wizard seeded from the current window and an optional
// room selection.
func OpenBulk(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openBulkRequest
		if err := decodeBody(r, &req, true); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, c.Bulk().Open(req.RoomIDs))
	}
}

// SetBulkScope replaces the scope while the wizard is on the scope step.
func SetBulkScope(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s model.BulkScope
		if err := decodeBody(r, &s, false); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		if err := c.Bulk().SetScope(s); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Bulk().State())
	}
}

// SetBulkActions replaces the actions while the wizard is on the actions step.
func SetBulkActions(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a model.BulkActions
		if err := decodeBody(r, &a, false); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		if err := c.Bulk().SetActions(a); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Bulk().State())
	}
}

// NextBulkStep validates the current step and advances.
func NextBulkStep(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := c.Bulk().Next(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Bulk().State())
	}
}

// PrevBulkStep goes back one step.
func PrevBulkStep(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := c.Bulk().Back(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Bulk().State())
	}
}

// CancelBulk closes the wizard and discards its state.
func CancelBulk(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Bulk().Cancel()
		w.WriteHeader(http.StatusNoContent)
	}
}

// PreviewBulk returns the request the wizard would submit.
func PreviewBulk(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := c.Bulk().Preview()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ExecuteBulk submits the bulk edit. On failure the wizard stays open with
// the error recorded in its state.
func ExecuteBulk(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := c.ExecuteBulk(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, BulkExecuteResponse{Updated: n})
	}
}
