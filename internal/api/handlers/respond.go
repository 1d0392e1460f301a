// Package handlers provides the HTTP handlers of the control API. Each
// exported function returns an [http.HandlerFunc] bound to a coordinator.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/njoerd114/availsync/internal/api/middleware"
	"github.com/njoerd114/availsync/internal/channelmanager"
	"github.com/njoerd114/availsync/internal/model"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes the request body into v. An empty body is accepted
// when optional is true and leaves v untouched.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeError maps a coordinator error onto a status code and error code.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *channelmanager.APIError
	switch {
	case errors.Is(err, syncp.ErrNothingPending),
		errors.Is(err, syncp.ErrWizardClosed),
		errors.Is(err, syncp.ErrInvalidStep),
		errors.Is(err, syncp.ErrSuperseded):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case errors.Is(err, model.ErrInvalidValue),
		errors.Is(err, model.ErrUnknownField),
		errors.Is(err, model.ErrInvertedRange),
		errors.Is(err, model.ErrEmptyRange),
		errors.Is(err, model.ErrEmptyRooms),
		errors.Is(err, model.ErrNoActions):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	case errors.As(err, &apiErr):
		middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrUpstream, err.Error(),
			map[string]int{"status_code": apiErr.StatusCode})
	default:
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, err.Error())
	}
}
