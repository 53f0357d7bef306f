package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vanmesh/vanmesh-core/internal/device"
)

// Logger matches the logging interface used across the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result describes the outcome of a forwarded command.
//
// On a transport-level failure StatusCode is zero and DeviceResponse is
// nil. When the device answered, StatusCode carries its HTTP status and
// DeviceResponse its raw body, even if the status was an error.
type Result struct {
	DeviceID       string
	Command        string
	StatusCode     int
	DeviceResponse json.RawMessage
	FailureCount   int
}

// DeviceAnswered reports whether the device produced any HTTP response.
// Distinguishes a device-side error from an unreachable device.
func (r *Result) DeviceAnswered() bool {
	return r != nil && r.StatusCode != 0
}

// Forwarder relays control commands to registered devices.
//
// It consults the registry for the target's endpoint, enforces the
// liveness precondition, and feeds the outcome back into the registry's
// failure counter. The registry lock is never held across the network
// call.
type Forwarder struct {
	registry  *device.Registry
	transport Transport
	timeout   time.Duration
	logger    Logger
}

// NewForwarder creates a command forwarder. A nil transport gets the
// default HTTP transport with the given timeout.
func NewForwarder(registry *device.Registry, transport Transport, timeout time.Duration) *Forwarder {
	if transport == nil {
		transport = NewHTTPTransport(timeout)
	}
	return &Forwarder{
		registry:  registry,
		transport: transport,
		timeout:   timeout,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the forwarder.
func (f *Forwarder) SetLogger(logger Logger) {
	f.logger = logger
}

// Forward sends a command to a device.
//
// Preconditions, checked in order: the device must be registered
// (device.ErrNotFound otherwise), must classify active
// (ErrDeviceUnavailable), and the command must exist for its type
// (ErrUnknownCommand). A payload of nil forwards the command without a
// body.
//
// A 200 from the device resets its failure counter and returns a nil
// error. Any other outcome increments the counter and returns
// ErrForwardingFailed; the Result is still returned so callers can relay
// what the device said.
func (f *Forwarder) Forward(ctx context.Context, deviceID, command string, payload map[string]any) (*Result, error) {
	rec, err := f.registry.Get(deviceID)
	if err != nil {
		return nil, err
	}

	if status := f.registry.Status(rec); status != device.StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrDeviceUnavailable, deviceID, status)
	}

	path, ok := CommandPath(rec.Type, command)
	if !ok {
		return nil, fmt.Errorf("%w: %q for device type %q", ErrUnknownCommand, command, rec.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url := "http://" + rec.Endpoint() + path

	f.logger.Debug("forwarding command",
		"device_id", deviceID,
		"command", command,
		"url", url,
	)

	var body any
	if len(payload) > 0 {
		body = payload
	}

	status, respBody, err := f.transport.Post(ctx, url, body)
	if err != nil {
		count, _ := f.registry.RecordFailure(deviceID)
		f.logger.Warn("command delivery failed",
			"device_id", deviceID,
			"command", command,
			"failures", count,
			"error", err,
		)
		result := &Result{DeviceID: deviceID, Command: command, FailureCount: count}
		return result, fmt.Errorf("%w: %v", ErrForwardingFailed, err)
	}

	result := &Result{
		DeviceID:       deviceID,
		Command:        command,
		StatusCode:     status,
		DeviceResponse: respBody,
	}

	if status != http.StatusOK {
		count, _ := f.registry.RecordFailure(deviceID)
		result.FailureCount = count
		f.logger.Warn("device rejected command",
			"device_id", deviceID,
			"command", command,
			"device_status", status,
			"failures", count,
		)
		return result, fmt.Errorf("%w: device returned %d", ErrForwardingFailed, status)
	}

	if err := f.registry.RecordSuccess(deviceID); err != nil {
		// Device swept between the call and the write-back. Harmless.
		f.logger.Debug("success write-back skipped", "device_id", deviceID)
	}

	f.logger.Info("command forwarded",
		"device_id", deviceID,
		"command", command,
	)
	return result, nil
}
