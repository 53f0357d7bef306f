// Package mqtt provides MQTT client connectivity for the vanmesh coordinator.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the secondary presence channel: battery-powered ESP devices
// that keep a broker session open publish heartbeats to
// vanmesh/heartbeat/{device_id} instead of calling the HTTP
// registration endpoint. The coordinator also mirrors derived device
// status and lifecycle events onto retained topics for dashboards.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceHeartbeats(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleHeartbeat(topic, payload)
//	    })
package mqtt
