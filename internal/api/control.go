package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vanmesh/vanmesh-core/internal/audit"
	"github.com/vanmesh/vanmesh-core/internal/device"
	"github.com/vanmesh/vanmesh-core/internal/forward"
)

// controlRequest is the optional body of POST /control/{id}/{command}.
type controlRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// handleControlDevice forwards a command to a device.
//
// Status mapping: unknown or not-active device 404, command not in the
// type's vocabulary 400, device answered with an error 400, device
// unreachable 502.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	command := chi.URLParam(r, "command")

	var req controlRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	start := time.Now()
	result, err := s.forwarder.Forward(r.Context(), id, command, req.Parameters)
	duration := time.Since(start)

	if err != nil {
		s.handleForwardError(w, r, id, command, result, err)
		if s.influx != nil {
			s.influx.WriteCommandOutcome(id, command, false, duration)
		}
		return
	}

	s.recordEvent(r.Context(), audit.ActionCommandSent, id, "", "api", map[string]any{
		"command":     command,
		"duration_ms": duration.Milliseconds(),
	})
	s.hub.Broadcast("device.command", map[string]any{
		"device_id": id,
		"command":   command,
		"success":   true,
	})
	if s.influx != nil {
		s.influx.WriteCommandOutcome(id, command, true, duration)
	}

	var deviceResponse any
	if len(result.DeviceResponse) > 0 {
		deviceResponse = json.RawMessage(result.DeviceResponse)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"device_id":       id,
		"command":         command,
		"device_response": deviceResponse,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// handleForwardError maps a forwarding failure onto an HTTP response and
// records it in the event history.
func (s *Server) handleForwardError(w http.ResponseWriter, r *http.Request, id, command string, result *forward.Result, err error) {
	switch {
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found: "+id)
		return
	case errors.Is(err, forward.ErrDeviceUnavailable):
		// The device exists but cannot take commands right now; callers
		// retry after it re-registers, same as for an unknown device.
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, forward.ErrUnknownCommand):
		writeBadRequest(w, err.Error())
		return
	}

	details := map[string]any{"command": command, "error": err.Error()}
	if result != nil {
		details["failure_count"] = result.FailureCount
	}
	s.recordEvent(r.Context(), audit.ActionCommandFailed, id, "", "api", details)
	s.hub.Broadcast("device.command", map[string]any{
		"device_id": id,
		"command":   command,
		"success":   false,
	})

	if result.DeviceAnswered() {
		// The device is reachable but refused the command.
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":             "error",
			"code":               ErrCodeBadRequest,
			"message":            "device rejected command",
			"device_id":          id,
			"command":            command,
			"device_status_code": result.StatusCode,
			"device_response":    string(result.DeviceResponse),
		})
		return
	}

	payload := map[string]any{
		"status":    "error",
		"code":      ErrCodeBadGateway,
		"message":   "failed to communicate with device " + id,
		"device_id": id,
		"command":   command,
	}
	if result != nil {
		payload["failure_count"] = result.FailureCount
	}
	writeJSON(w, http.StatusBadGateway, payload)
}

// handleCleanup forces an immediate sweep of stale registrations.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	evicted := s.sweeper.RunOnce()

	removed := make([]string, 0, len(evicted))
	for _, rec := range evicted {
		removed = append(removed, rec.ID)
		s.recordEvent(r.Context(), audit.ActionEvicted, rec.ID, rec.Type, "api", nil)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"removed_devices": removed,
		"removed_count":   len(removed),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListEvents returns the persistent device event history.
//
// Query parameters: action, device_id, device_type, limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history is not enabled")
		return
	}

	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		DeviceID:   r.URL.Query().Get("device_id"),
		DeviceType: r.URL.Query().Get("device_type"),
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("event history query failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an integer query parameter, returning 0 when absent
// or malformed.
func queryInt(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
