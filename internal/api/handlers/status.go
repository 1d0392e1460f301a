package handlers

import (
	"net/http"

	syncp "github.com/njoerd114/availsync/internal/sync"
)

// HealthResponse is the health check body.
type HealthResponse struct {
	Status string `json:"status"`
	Push   string `json:"push"`
}

// HealthCheck reports "ok" while the last calendar fetch succeeded and
// "degraded" otherwise.
func HealthCheck(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := c.Status()
		resp := HealthResponse{Status: "ok", Push: st.Push}
		code := http.StatusOK
		if st.Error != "" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// Status returns the coordinator status.
func Status(c *syncp.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Status())
	}
}
