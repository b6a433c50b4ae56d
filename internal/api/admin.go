package api

import (
	"fmt"
	"net/http"

	"warehouse.dev/monitor/internal/auth"
	"warehouse.dev/monitor/internal/store"
)

func (h *handler) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.store.Zones.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, zones)
}

func (h *handler) getZone(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	zone, err := h.store.Zones.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, zone)
}

type zoneRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *handler) createZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	zone := &store.Zone{Name: req.Name, Description: req.Description}
	if err := h.store.Zones.Create(r.Context(), zone); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, zone)
}

func (h *handler) updateZone(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req zoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.store.Zones.Update(r.Context(), &store.Zone{ID: id, Name: req.Name, Description: req.Description}); err != nil {
		writeError(w, h.logger, err)
		return
	}
	zone, err := h.store.Zones.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, zone)
}

func (h *handler) deleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.store.Zones.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Zone removed")
}

func (h *handler) listSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.store.Sensors.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, sensors)
}

// createSensor requires a zone even though the store accepts unzoned sensors;
// the engine would skip an unzoned sensor forever.
func (h *handler) createSensor(w http.ResponseWriter, r *http.Request) {
	var sensor store.Sensor
	if err := decodeJSON(r, &sensor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if sensor.ZoneID == nil {
		writeError(w, h.logger, fmt.Errorf("%w: sensorId, type and zoneId are required", store.ErrInvalid))
		return
	}
	sensor.ID = 0
	sensor.Zone = nil
	if err := h.store.Sensors.Create(r.Context(), &sensor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSensor(w, r, http.StatusCreated, sensor.ID)
}

func (h *handler) updateSensor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var sensor store.Sensor
	if err := decodeJSON(r, &sensor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sensor.ID = id
	sensor.Zone = nil
	if err := h.store.Sensors.Update(r.Context(), &sensor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSensor(w, r, http.StatusOK, id)
}

func (h *handler) writeSensor(w http.ResponseWriter, r *http.Request, status int, id uint) {
	sensor, err := h.store.Sensors.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, status, sensor)
}

func (h *handler) deleteSensor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.store.Sensors.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Sensor removed")
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Users.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, users)
}

type userRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
	Zones       []uint `json:"zones"`
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %w", store.ErrInvalid, err))
		return
	}

	user := &store.User{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        role,
	}
	for _, id := range req.Zones {
		user.Zones = append(user.Zones, store.Zone{ID: id})
	}
	if err := h.store.Users.Create(r.Context(), user); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}

type assignZonesRequest struct {
	Zones *[]uint `json:"zones"`
}

func (h *handler) assignZones(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req assignZonesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Zones == nil {
		writeError(w, h.logger, fmt.Errorf("%w: zones must be an array", store.ErrInvalid))
		return
	}

	user, err := h.store.Users.AssignZones(r.Context(), id, *req.Zones)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, user)
}
