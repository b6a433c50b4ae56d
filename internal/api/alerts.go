package api

import (
	"errors"
	"fmt"
	"net/http"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/store"
)

func (h *handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.Alerts.Active(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, alerts)
}

func (h *handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	claims, _ := ClaimsFrom(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	alert, err := h.store.Alerts.Acknowledge(r.Context(), id, userID, claims.Name, h.now().UTC())
	h.countAcknowledgement(err)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("alert acknowledged", "alert_id", alert.ID, "user_id", userID)
	if err := h.hub.PublishAlert(r.Context(), events.NewAlertEvent(alert)); err != nil {
		h.logger.Warn("failed to broadcast acknowledgement", "alert_id", alert.ID, "error", err)
	}
	writeData(w, http.StatusOK, alert)
}

func (h *handler) countAcknowledgement(err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, store.ErrAlertNotTriggered):
		result = "not_triggered"
	case errors.Is(err, store.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	h.metrics.Acknowledgements.WithLabelValues(result).Inc()
}

// notifyAlert rebroadcasts an alert update posted by a standalone alerting service.
func (h *handler) notifyAlert(w http.ResponseWriter, r *http.Request) {
	var e events.AlertEvent
	if err := decodeJSON(r, &e); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if e.Alert.ID == 0 {
		writeError(w, h.logger, fmt.Errorf("%w: alert id is required", store.ErrInvalid))
		return
	}
	if e.Type == "" {
		e.Type = events.TypeAlertUpdate
	}

	if err := h.hub.PublishAlert(r.Context(), e); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Alert broadcasted")
}
