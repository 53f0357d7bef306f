// Package api provides the HTTP REST API and WebSocket server for the
// vanmesh coordinator.
//
// It exposes device registration and heartbeat, fleet listing, command
// forwarding, forced cleanup, and a WebSocket event stream for operator
// dashboards watching presence live.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vanmesh/vanmesh-core/internal/audit"
	"github.com/vanmesh/vanmesh-core/internal/device"
	"github.com/vanmesh/vanmesh-core/internal/forward"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/config"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/influxdb"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/logging"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// MQTT, Audit, and Influx are optional; the corresponding features are
// skipped when nil.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Sweeper   *device.Sweeper
	Forwarder *forward.Forwarder
	MQTT      *mqtt.Client
	Audit     audit.Repository
	Influx    *influxdb.Client
	Version   string
}

// Server is the HTTP API server for the vanmesh coordinator.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	sweeper   *device.Sweeper
	forwarder *forward.Forwarder
	mqtt      *mqtt.Client
	audit     audit.Repository
	influx    *influxdb.Client
	version   string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Forwarder == nil {
		return nil, fmt.Errorf("command forwarder is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		sweeper:   deps.Sweeper,
		forwarder: deps.Forwarder,
		mqtt:      deps.MQTT,
		audit:     deps.Audit,
		influx:    deps.Influx,
		version:   deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. Nil until Start has been called.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// recordEvent appends an entry to the persistent event history. Best
// effort: a failed write is logged, never surfaced to the caller.
func (s *Server) recordEvent(ctx context.Context, action, deviceID, deviceType, source string, details map[string]any) {
	if s.audit == nil {
		return
	}
	event := &audit.Event{
		Action:     action,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Source:     source,
		Details:    details,
	}
	if err := s.audit.Create(ctx, event); err != nil {
		s.logger.Warn("event history write failed",
			"action", action,
			"device_id", deviceID,
			"error", err,
		)
	}
}

// publishEvent mirrors a lifecycle event onto the MQTT event topic.
// Best effort, same as recordEvent.
func (s *Server) publishEvent(eventType string, payload []byte) {
	if s.mqtt == nil {
		return
	}
	if err := s.mqtt.Publish(mqtt.Topics{}.Event(eventType), payload, 1, false); err != nil {
		s.logger.Debug("event publish failed", "event", eventType, "error", err)
	}
}
