package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"warehouse.dev/monitor/internal/store"
)

const aggregateWindow = 24 * time.Hour

func (h *handler) latestReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := h.store.Readings.LatestAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, readings)
}

// readingHistory returns the newest readings of one sensor; ?limit= caps the
// count at store.DefaultHistoryLimit.
func (h *handler) readingHistory(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	readings, err := h.store.Readings.History(r.Context(), chi.URLParam(r, "sensorId"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, readings)
}

func (h *handler) readingAggregates(w http.ResponseWriter, r *http.Request) {
	since := h.now().Add(-aggregateWindow)
	agg, err := h.store.Readings.Aggregates(r.Context(), chi.URLParam(r, "sensorId"), since)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "No data found for the specified sensor in the last 24 hours.")
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, agg)
}
