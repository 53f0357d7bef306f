package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vanmesh/vanmesh-core/internal/audit"
	"github.com/vanmesh/vanmesh-core/internal/device"
)

// registrationRequest is the body of PUT /api/v1/coordinator/device/{id}.
type registrationRequest struct {
	DeviceType string `json:"device_type"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
}

// handleRegisterDevice registers a device or refreshes its heartbeat.
//
// Devices call this every 30 seconds. Responds 201 when the device was
// newly admitted, 200 on a heartbeat refresh, 409 when the type's quota
// is full, 400 on validation failures.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.registry.Upsert(id, req.DeviceType, req.Address, req.Port)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrQuotaExceeded):
			writeConflict(w, err.Error())
		case errors.Is(err, device.ErrUnknownType),
			errors.Is(err, device.ErrInvalidID),
			errors.Is(err, device.ErrInvalidAddress),
			errors.Is(err, device.ErrInvalidPort):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to register device")
		}
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeInternalError(w, "failed to load registered device")
		return
	}
	snapshot := device.Snapshot{Record: *rec, Status: s.registry.Status(rec)}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.recordEvent(r.Context(), audit.ActionRegistered, rec.ID, rec.Type, "api", map[string]any{
			"address": rec.Address,
			"port":    rec.Port,
		})
		s.hub.Broadcast("device.registered", snapshot)
		if data, err := json.Marshal(snapshot); err == nil {
			s.publishEvent("device_registered", data)
		}
	} else {
		s.hub.Broadcast("device.heartbeat", snapshot)
	}

	writeJSON(w, status, map[string]any{
		"status":    "success",
		"device":    snapshot,
		"created":   created,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGetDevice returns a single device with its derived status.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	writeJSON(w, http.StatusOK, device.Snapshot{Record: *rec, Status: s.registry.Status(rec)})
}

// handleRemoveDevice deletes a registration, freeing its quota slot.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	if err := s.registry.Remove(id); err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	s.recordEvent(r.Context(), audit.ActionRemoved, rec.ID, rec.Type, "api", nil)
	s.hub.Broadcast("device.removed", map[string]any{
		"id":          rec.ID,
		"device_type": rec.Type,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"device_id": id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListDevices returns registered devices, with optional filters.
//
// Query parameters:
//   - device_type: only devices of this type
//   - active_only: "true" restricts to devices currently classified active
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	filter := device.Filter{
		Type: r.URL.Query().Get("device_type"),
	}
	if v := r.URL.Query().Get("active_only"); v == "true" || v == "1" {
		filter.ActiveOnly = true
	}

	devices := s.registry.List(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleStats returns registry statistics.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_devices":    stats.TotalDevices,
		"active_devices":   stats.ActiveDevices,
		"inactive_devices": stats.InactiveDevices,
		"devices_by_type":  stats.DevicesByType,
		"type_quotas":      stats.TypeQuotas,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
