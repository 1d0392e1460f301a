// Package api serves the local control API of the availsync daemon.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/njoerd114/availsync/internal/api/handlers"
	"github.com/njoerd114/availsync/internal/api/middleware"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

// NewRouter creates the HTTP router with every control API route bound to c.
func NewRouter(c *syncp.Coordinator, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "No such route")
	})

	api := r.PathPrefix("/api").Subrouter()

	// Health and status
	api.HandleFunc("/health", handlers.HealthCheck(c)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(c)).Methods("GET")

	// Calendar window
	api.HandleFunc("/calendar", handlers.GetCalendar(c)).Methods("GET")
	api.HandleFunc("/calendar/refresh", handlers.RefreshCalendar(c)).Methods("POST")
	api.HandleFunc("/calendar/navigate", handlers.Navigate(c)).Methods("POST")
	api.HandleFunc("/calendar/today", handlers.Today(c)).Methods("POST")
	api.HandleFunc("/calendar/range", handlers.SetRange(c)).Methods("PUT")
	api.HandleFunc("/calendar/filters", handlers.SetFilters(c)).Methods("PUT")

	// Cells
	api.HandleFunc("/cells/{room:[0-9]+}/{date}", handlers.GetCell(c)).Methods("GET")
	api.HandleFunc("/cells/{room:[0-9]+}/{date}", handlers.UpdateCell(c)).Methods("PATCH")

	// Pending sync and manual sync
	api.HandleFunc("/pending", handlers.GetPending(c)).Methods("GET")
	api.HandleFunc("/pending/refresh", handlers.RefreshPending(c)).Methods("POST")
	api.HandleFunc("/sync", handlers.GetSyncSession(c)).Methods("GET")
	api.HandleFunc("/sync", handlers.TriggerSync(c)).Methods("POST")

	// Bulk edit wizard
	api.HandleFunc("/bulk", handlers.GetBulk(c)).Methods("GET")
	api.HandleFunc("/bulk", handlers.OpenBulk(c)).Methods("POST")
	api.HandleFunc("/bulk", handlers.CancelBulk(c)).Methods("DELETE")
	api.HandleFunc("/bulk/scope", handlers.SetBulkScope(c)).Methods("PUT")
	api.HandleFunc("/bulk/actions", handlers.SetBulkActions(c)).Methods("PUT")
	api.HandleFunc("/bulk/next", handlers.NextBulkStep(c)).Methods("POST")
	api.HandleFunc("/bulk/back", handlers.PrevBulkStep(c)).Methods("POST")
	api.HandleFunc("/bulk/preview", handlers.PreviewBulk(c)).Methods("GET")
	api.HandleFunc("/bulk/execute", handlers.ExecuteBulk(c)).Methods("POST")

	return r
}
