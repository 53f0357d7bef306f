// Package ingest feeds device heartbeats arriving over MQTT into the
// presence registry, so devices holding a broker session do not need to
// call the HTTP registration endpoint.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vanmesh/vanmesh-core/internal/device"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/mqtt"
)

// Subscriber is the slice of the MQTT client the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger matches the logging interface used across the service.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// heartbeatPayload is the JSON body devices publish on their heartbeat
// topic. The device ID comes from the topic, not the payload.
type heartbeatPayload struct {
	DeviceType string `json:"device_type"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
}

// Registered is called after a heartbeat admitted a new device, outside
// the broker callback's error path.
type Registered func(rec *device.Record)

// HeartbeatListener subscribes to the device heartbeat topics and upserts
// each announcement into the registry.
type HeartbeatListener struct {
	registry   *device.Registry
	logger     Logger
	registered Registered
}

// NewHeartbeatListener creates a listener. The onRegistered callback is
// optional.
func NewHeartbeatListener(registry *device.Registry, logger Logger, onRegistered Registered) *HeartbeatListener {
	return &HeartbeatListener{
		registry:   registry,
		logger:     logger,
		registered: onRegistered,
	}
}

// Start subscribes to the heartbeat wildcard topic. Subscriptions are
// restored by the MQTT client on reconnect, so this is a one-shot call.
func (l *HeartbeatListener) Start(sub Subscriber) error {
	topic := mqtt.Topics{}.AllDeviceHeartbeats()
	if err := sub.Subscribe(topic, 1, l.handle); err != nil {
		return fmt.Errorf("subscribing to heartbeats: %w", err)
	}
	return nil
}

// handle processes one heartbeat message. Malformed messages are
// reported through the returned error and otherwise dropped; a bad
// device cannot be allowed to wedge the ingress.
func (l *HeartbeatListener) handle(topic string, payload []byte) error {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("heartbeat on unexpected topic %q", topic)
	}

	var hb heartbeatPayload
	if err := json.Unmarshal(payload, &hb); err != nil {
		return fmt.Errorf("decoding heartbeat from %q: %w", deviceID, err)
	}

	created, err := l.registry.Upsert(deviceID, hb.DeviceType, hb.Address, hb.Port)
	if err != nil {
		l.logger.Warn("heartbeat rejected",
			"device_id", deviceID,
			"device_type", hb.DeviceType,
			"error", err,
		)
		return fmt.Errorf("upserting %q: %w", deviceID, err)
	}

	l.logger.Debug("heartbeat ingested", "device_id", deviceID, "created", created)

	if created && l.registered != nil {
		if rec, err := l.registry.Get(deviceID); err == nil {
			l.registered(rec)
		}
	}
	return nil
}

// deviceIDFromTopic extracts the device ID from vanmesh/heartbeat/{id}.
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "vanmesh" || parts[1] != "heartbeat" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
