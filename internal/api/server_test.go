package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vanmesh/vanmesh-core/internal/device"
	"github.com/vanmesh/vanmesh-core/internal/forward"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/config"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/logging"
)

// stubTransport is an in-test Transport that returns canned device replies.
type stubTransport struct {
	mu      sync.Mutex
	status  int
	body    []byte
	err     error
	calls   int
	lastURL string
}

func (t *stubTransport) Post(_ context.Context, url string, _ any) (int, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.lastURL = url
	if t.err != nil {
		return 0, nil, t.err
	}
	return t.status, t.body, nil
}

type fakeServerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeServerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeServerClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router    http.Handler
	registry  *device.Registry
	transport *stubTransport
	clock     *fakeServerClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeServerClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	registry := device.NewRegistry(device.Options{
		Quotas:                   map[string]int{"rear-camera": 1, "sensor": 3},
		Thresholds:               device.DefaultThresholds(),
		ResetFailuresOnHeartbeat: true,
		Clock:                    clock.Now,
	})

	transport := &stubTransport{status: http.StatusOK, body: []byte(`{"result":"ok"}`)}
	forwarder := forward.NewForwarder(registry, transport, 10*time.Second)
	sweeper := device.NewSweeper(registry, time.Minute, nil)

	logger := logging.New(config.LoggingConfig{Level: "error", Output: "stderr"}, "test")
	wsCfg := config.WebSocketConfig{
		Path:           "/ws",
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}

	srv, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 5000},
		WS:        wsCfg,
		Logger:    logger,
		Registry:  registry,
		Sweeper:   sweeper,
		Forwarder: forwarder,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Handlers broadcast through the hub, which Start would normally create.
	srv.hub = NewHub(wsCfg, logger)

	return &testEnv{
		router:    srv.buildRouter(),
		registry:  registry,
		transport: transport,
		clock:     clock,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

func registerCamera(t *testing.T, e *testEnv, id string) {
	t.Helper()
	rec := e.do(t, http.MethodPut, "/api/v1/coordinator/device/"+id, map[string]any{
		"device_type": "rear-camera",
		"address":     "192.168.1.50",
		"port":        8080,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body %s", id, rec.Code, rec.Body.String())
	}
}

func TestRegisterDeviceCreated(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/coordinator/device/cam1", map[string]any{
		"device_type": "rear-camera",
		"address":     "192.168.1.50",
		"port":        8080,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	body := decodeBody(t, rec)
	if body["created"] != true {
		t.Errorf("created = %v, want true", body["created"])
	}
	dev, ok := body["device"].(map[string]any)
	if !ok {
		t.Fatalf("device field missing: %v", body)
	}
	if dev["id"] != "cam1" || dev["status"] != "active" {
		t.Errorf("device = %v, want id cam1 status active", dev)
	}
}

func TestRegisterDeviceHeartbeatReturns200(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodPut, "/api/v1/coordinator/device/cam1", map[string]any{
		"device_type": "rear-camera",
		"address":     "192.168.1.50",
		"port":        8080,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["created"] != false {
		t.Errorf("created = %v, want false", body["created"])
	}
}

func TestRegisterDeviceQuotaConflict(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodPut, "/api/v1/coordinator/device/cam2", map[string]any{
		"device_type": "rear-camera",
		"address":     "192.168.1.51",
		"port":        8080,
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	body := decodeBody(t, rec)
	if body["code"] != ErrCodeConflict {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeConflict)
	}
}

func TestRegisterDeviceValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		id   string
		req  map[string]any
	}{
		{
			name: "unknown type",
			id:   "dev1",
			req:  map[string]any{"device_type": "toaster", "address": "10.0.0.1", "port": 80},
		},
		{
			name: "bad port",
			id:   "dev1",
			req:  map[string]any{"device_type": "sensor", "address": "10.0.0.1", "port": 99999},
		},
		{
			name: "bad address",
			id:   "dev1",
			req:  map[string]any{"device_type": "sensor", "address": "http://10.0.0.1", "port": 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPut, "/api/v1/coordinator/device/"+tt.id, tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}
}

func TestRegisterDeviceInvalidJSON(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/coordinator/device/cam1", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetDevice(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodGet, "/api/v1/coordinator/device/cam1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["id"] != "cam1" || body["device_type"] != "rear-camera" {
		t.Errorf("unexpected device payload: %v", body)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/coordinator/device/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing device status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetDeviceStaleReportsInactive(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	e.clock.Advance(3 * time.Minute)

	rec := e.do(t, http.MethodGet, "/api/v1/coordinator/device/cam1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["status"] != "inactive" {
		t.Errorf("status = %v, want inactive", body["status"])
	}
}

func TestGetDevicePastRemovalIs404(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	e.clock.Advance(6 * time.Minute)

	rec := e.do(t, http.MethodGet, "/api/v1/coordinator/device/cam1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRemoveDevice(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodDelete, "/api/v1/coordinator/device/cam1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	// The quota slot is free again.
	registerCamera(t, e, "cam2")

	rec = e.do(t, http.MethodDelete, "/api/v1/coordinator/device/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing device status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListDevicesFilters(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")
	rec := e.do(t, http.MethodPut, "/api/v1/coordinator/device/temp1", map[string]any{
		"device_type": "sensor",
		"address":     "10.0.0.2",
		"port":        9000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register sensor: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/coordinator/devices", nil)
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}

	rec = e.do(t, http.MethodGet, "/api/v1/coordinator/devices?device_type=sensor", nil)
	body = decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("filtered count = %v, want 1", body["count"])
	}

	// Age the fleet past the inactive threshold, only fresh heartbeats count
	// as active.
	e.clock.Advance(3 * time.Minute)
	rec = e.do(t, http.MethodPut, "/api/v1/coordinator/device/cam1", map[string]any{
		"device_type": "rear-camera",
		"address":     "192.168.1.50",
		"port":        8080,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/coordinator/devices?active_only=true", nil)
	body = decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("active count = %v, want 1", body["count"])
	}
}

func TestStats(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodGet, "/api/v1/coordinator/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["total_devices"] != float64(1) || body["active_devices"] != float64(1) {
		t.Errorf("unexpected stats: %v", body)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" || body["service"] != "vanmesh" {
		t.Errorf("unexpected health payload: %v", body)
	}
}

func TestControlDeviceSuccess(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/control/cam1/up", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" || body["command"] != "up" {
		t.Errorf("unexpected payload: %v", body)
	}
	if want := "http://192.168.1.50:8080/api/v1/rear-camera/up"; e.transport.lastURL != want {
		t.Errorf("forwarded URL = %q, want %q", e.transport.lastURL, want)
	}
}

func TestControlDeviceNotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/control/ghost/up", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if e.transport.calls != 0 {
		t.Errorf("transport called %d times for unknown device", e.transport.calls)
	}
}

func TestControlDeviceInactiveNotFound(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")
	e.clock.Advance(3 * time.Minute)

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/control/cam1/up", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if e.transport.calls != 0 {
		t.Errorf("transport called %d times for inactive device", e.transport.calls)
	}
}

func TestControlDeviceUnknownCommand(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/control/cam1/explode", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if e.transport.calls != 0 {
		t.Errorf("transport called %d times for unknown command", e.transport.calls)
	}
}

func TestControlDeviceRejectedCommand(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")
	e.transport.status = http.StatusInternalServerError
	e.transport.body = []byte(`{"error":"motor jammed"}`)

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/control/cam1/up", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	body := decodeBody(t, rec)
	if body["device_status_code"] != float64(http.StatusInternalServerError) {
		t.Errorf("device_status_code = %v, want 500", body["device_status_code"])
	}
}

func TestControlDeviceUnreachableBadGateway(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")
	e.transport.err = errors.New("connection refused")

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/control/cam1/up", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	body := decodeBody(t, rec)
	if body["failure_count"] != float64(1) {
		t.Errorf("failure_count = %v, want 1", body["failure_count"])
	}
}

func TestCleanupEndpoint(t *testing.T) {
	e := newTestEnv(t)
	registerCamera(t, e, "cam1")
	e.clock.Advance(6 * time.Minute)

	rec := e.do(t, http.MethodPost, "/api/v1/coordinator/cleanup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["removed_count"] != float64(1) {
		t.Errorf("removed_count = %v, want 1", body["removed_count"])
	}
	removed, _ := body["removed_devices"].([]any)
	if len(removed) != 1 || removed[0] != "cam1" {
		t.Errorf("removed_devices = %v, want [cam1]", removed)
	}

	// Slot is free after eviction.
	registerCamera(t, e, "cam2")
}

func TestListEventsUnavailableWithoutStore(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/coordinator/events", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Output: "stderr"}, "test")
	registry := device.NewRegistry(device.Options{Thresholds: device.DefaultThresholds()})
	forwarder := forward.NewForwarder(registry, &stubTransport{}, time.Second)

	if _, err := New(Deps{Registry: registry, Forwarder: forwarder}); err == nil {
		t.Error("New without logger should fail")
	}
	if _, err := New(Deps{Logger: logger, Forwarder: forwarder}); err == nil {
		t.Error("New without registry should fail")
	}
	if _, err := New(Deps{Logger: logger, Registry: registry}); err == nil {
		t.Error("New without forwarder should fail")
	}
}
