package ingest

import (
	"testing"

	"github.com/vanmesh/vanmesh-core/internal/device"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/mqtt"
)

type stubSubscriber struct {
	topic   string
	handler mqtt.MessageHandler
}

func (s *stubSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	s.topic = topic
	s.handler = handler
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

func newTestRegistry() *device.Registry {
	return device.NewRegistry(device.Options{
		Quotas:     map[string]int{"rear-camera": 1},
		Thresholds: device.DefaultThresholds(),
	})
}

func TestHeartbeatRegistersDevice(t *testing.T) {
	reg := newTestRegistry()

	var registeredID string
	listener := NewHeartbeatListener(reg, nopLogger{}, func(rec *device.Record) {
		registeredID = rec.ID
	})

	sub := &stubSubscriber{}
	if err := listener.Start(sub); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sub.topic != "vanmesh/heartbeat/+" {
		t.Errorf("subscribed to %q", sub.topic)
	}

	payload := []byte(`{"device_type":"rear-camera","address":"192.168.1.50","port":8080}`)
	if err := sub.handler("vanmesh/heartbeat/cam1", payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec, err := reg.Get("cam1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Address != "192.168.1.50" || rec.Port != 8080 {
		t.Errorf("record = %+v", rec)
	}
	if registeredID != "cam1" {
		t.Errorf("onRegistered got %q", registeredID)
	}
}

func TestHeartbeatCallbackOnlyOnCreation(t *testing.T) {
	reg := newTestRegistry()

	calls := 0
	listener := NewHeartbeatListener(reg, nopLogger{}, func(*device.Record) { calls++ })
	sub := &stubSubscriber{}
	if err := listener.Start(sub); err != nil {
		t.Fatalf("Start: %v", err)
	}

	payload := []byte(`{"device_type":"rear-camera","address":"10.0.0.1","port":80}`)
	for i := 0; i < 3; i++ {
		if err := sub.handler("vanmesh/heartbeat/cam1", payload); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("onRegistered fired %d times, want 1", calls)
	}
}

func TestHeartbeatRejectsMalformed(t *testing.T) {
	reg := newTestRegistry()
	listener := NewHeartbeatListener(reg, nopLogger{}, nil)
	sub := &stubSubscriber{}
	if err := listener.Start(sub); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"bad topic", "vanmesh/status/cam1", `{"device_type":"rear-camera","address":"10.0.0.1","port":80}`},
		{"empty id", "vanmesh/heartbeat/", `{"device_type":"rear-camera","address":"10.0.0.1","port":80}`},
		{"not json", "vanmesh/heartbeat/cam1", `not-json`},
		{"unknown type", "vanmesh/heartbeat/cam1", `{"device_type":"toaster","address":"10.0.0.1","port":80}`},
		{"bad port", "vanmesh/heartbeat/cam1", `{"device_type":"rear-camera","address":"10.0.0.1","port":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sub.handler(tt.topic, []byte(tt.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if reg.Count() != 0 {
		t.Errorf("registry holds %d records after malformed heartbeats", reg.Count())
	}
}
