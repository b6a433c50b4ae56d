package api

import (
	"fmt"
	"net/http"
	"strings"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/store"
)

type ingestRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	SensorID    string   `json:"sensorId"`
	WarehouseID string   `json:"warehouseId"`
}

// ingestReading stores a reading stamped with the server clock.
func (h *handler) ingestReading(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		h.countIngest("rejected")
		writeError(w, h.logger, err)
		return
	}
	req.SensorID = strings.TrimSpace(req.SensorID)
	req.WarehouseID = strings.TrimSpace(req.WarehouseID)
	if req.SensorID == "" || req.WarehouseID == "" || req.Temperature == nil || req.Humidity == nil {
		h.countIngest("rejected")
		writeError(w, h.logger, fmt.Errorf("%w: sensorId, temperature, humidity and warehouseId are required", store.ErrInvalid))
		return
	}

	reading := &store.Reading{
		SensorID:    req.SensorID,
		WarehouseID: req.WarehouseID,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Timestamp:   h.now().UTC(),
	}
	if err := h.store.Readings.Append(r.Context(), reading); err != nil {
		h.countIngest("error")
		writeError(w, h.logger, err)
		return
	}
	h.countIngest("ok")

	if err := h.hub.PublishReading(r.Context(), events.NewReadingEvent(*reading)); err != nil {
		h.logger.Warn("failed to broadcast reading", "sensor_id", reading.SensorID, "error", err)
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Data ingested successfully", Data: reading})
}

func (h *handler) countIngest(status string) {
	if h.metrics != nil {
		h.metrics.ReadingsIngested.WithLabelValues("http", status).Inc()
	}
}
