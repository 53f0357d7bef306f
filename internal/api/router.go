package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check at the root, probed by load balancers and the devices
	// themselves before they first register.
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1/coordinator", func(r chi.Router) {
		r.Route("/device/{id}", func(r chi.Router) {
			r.Put("/", s.handleRegisterDevice)
			r.Get("/", s.handleGetDevice)
			r.Delete("/", s.handleRemoveDevice)
		})

		r.Get("/devices", s.handleListDevices)
		r.Get("/stats", s.handleStats)

		r.Post("/control/{id}/{command}", s.handleControlDevice)
		r.Post("/cleanup", s.handleCleanup)

		r.Get("/events", s.handleListEvents)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the coordinator health status with a registry summary.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"service":          "vanmesh",
		"version":          s.version,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"total_devices":    stats.TotalDevices,
		"active_devices":   stats.ActiveDevices,
		"inactive_devices": stats.InactiveDevices,
	})
}
