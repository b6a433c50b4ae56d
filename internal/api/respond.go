package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warehouse.dev/monitor/internal/auth"
	"warehouse.dev/monitor/internal/store"
)

const maxBodyBytes = 1 << 20

var errBadID = fmt.Errorf("%w: id must be a positive integer", store.ErrInvalid)

// envelope is the body of every JSON response.
type envelope struct {
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeList sets count alongside the data.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &n, Data: items})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: status < http.StatusBadRequest, Message: msg})
}

// writeError maps sentinel errors to status codes. Unknown errors are logged
// and reported as a bare 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrAdminZones):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrZoneInUse),
		errors.Is(err, store.ErrAlertNotTriggered):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeMessage(w, status, "Server Error")
		return
	}
	writeMessage(w, status, err.Error())
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %w", store.ErrInvalid, err)
	}
	return nil
}

// idParam parses the {id} route parameter.
func idParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadID
	}
	return uint(id), nil
}
