package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/njoerd114/availsync/internal/api/middleware"
	"github.com/njoerd114/availsync/internal/model"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

// CalendarResponse is the calendar view. Cached is true when Days come from
// the local cell cache because no snapshot has been fetched yet.
type CalendarResponse struct {
	Window     model.Window     `json:"window"`
	Filters    model.Filters    `json:"filters"`
	Days       []model.Day      `json:"days"`
	Statistics model.Statistics `json:"statistics"`
	Loading    bool             `json:"loading"`
	Cached     bool             `json:"cached"`
	Error      string           `json:"error,omitempty"`
}

type navigateRequest struct {
	Direction string `json:"direction"`
}

type cellUpdateRequest struct {
	Field model.CellField `json:"field"`
	Value any             `json:"value"`
}

// GetCalendar returns the current snapshot, falling back to cached days.
func GetCalendar(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCalendarView(w, r, c)
	}
}

// writeCalendarView writes the current view, using cached days while no
// snapshot has been fetched yet.
func writeCalendarView(w http.ResponseWriter, r *http.Request, c *syncp.Coordinator) {
	f := c.Fetcher()
	resp := CalendarResponse{
		Window:     f.Window(),
		Filters:    f.Filters(),
		Statistics: f.Statistics(),
		Loading:    f.Loading(),
	}
	if err := f.Err(); err != nil {
		resp.Error = err.Error()
	}
	if snap := f.Snapshot(); snap != nil {
		resp.Days = snap.Days
	} else {
		days, err := f.CachedDays(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read cached calendar")
			return
		}
		resp.Days = days
		resp.Cached = true
	}
	if resp.Days == nil {
		resp.Days = []model.Day{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSnapshot writes snap. A de-duplicated fetch that found no snapshot yet
// (the identical first fetch is still in flight) gets the calendar view.
func writeSnapshot(w http.ResponseWriter, r *http.Request, c *syncp.Coordinator, snap *model.Snapshot) {
	if snap == nil {
		writeCalendarView(w, r, c)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RefreshCalendar forces a fetch of the current window.
func RefreshCalendar(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := c.Fetch(r.Context(), syncp.FetchOptions{Force: true, ShowLoading: true})
		if err != nil {
			writeError(w, err)
			return
		}
		writeSnapshot(w, r, c, snap)
	}
}

// Navigate steps the window forward or backward by one period.
func Navigate(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req navigateRequest
		if err := decodeBody(r, &req, false); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		var dir model.Direction
		switch req.Direction {
		case "forward", "next":
			dir = model.Forward
		case "backward", "prev":
			dir = model.Backward
		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "direction must be forward or backward")
			return
		}
		snap, err := c.Navigate(r.Context(), dir)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSnapshot(w, r, c, snap)
	}
}

// Today jumps back to the window containing the current week.
func Today(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := c.Today(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeSnapshot(w, r, c, snap)
	}
}

// SetRange moves the window to an explicit date range.
func SetRange(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var win model.Window
		if err := decodeBody(r, &win, false); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		snap, err := c.SetRange(r.Context(), win)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSnapshot(w, r, c, snap)
	}
}

// SetFilters replaces the calendar filters.
func SetFilters(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f model.Filters
		if err := decodeBody(r, &f, false); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		if f.SyncStatus != "" && !f.SyncStatus.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "unknown sync_status "+strconv.Quote(string(f.SyncStatus)))
			return
		}
		snap, err := c.SetFilters(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSnapshot(w, r, c, snap)
	}
}

// GetCell returns one cell of the current snapshot.
func GetCell(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, date, ok := cellAddress(w, r)
		if !ok {
			return
		}
		cell, found := c.AvailabilityAt(roomID, date)
		if !found {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Cell not in the current window")
			return
		}
		writeJSON(w, http.StatusOK, cell)
	}
}

// UpdateCell edits one field of one cell and returns the patched cell.
func UpdateCell(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, date, ok := cellAddress(w, r)
		if !ok {
			return
		}
		var req cellUpdateRequest
		if err := decodeBody(r, &req, false); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}
		if err := c.UpdateCell(r.Context(), roomID, date, req.Field, req.Value); err != nil {
			writeError(w, err)
			return
		}
		cell, found := c.AvailabilityAt(roomID, date)
		if !found {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, cell)
	}
}

func cellAddress(w http.ResponseWriter, r *http.Request) (int64, model.Date, bool) {
	vars := mux.Vars(r)
	roomID, err := strconv.ParseInt(vars["room"], 10, 64)
	if err != nil || roomID <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid room id")
		return 0, model.Date{}, false
	}
	date, err := model.ParseDate(vars["date"])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid date, want YYYY-MM-DD")
		return 0, model.Date{}, false
	}
	return roomID, date, true
}
