package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRegistryStats records a snapshot of registry population counts.
//
// Written on every sweep tick so the fleet's presence history can be
// graphed. The write is non-blocking; data is batched and sent
// asynchronously.
func (c *Client) WriteRegistryStats(total, active, inactive int, byType map[string]int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"registry_stats",
		nil,
		map[string]interface{}{
			"total_devices":    total,
			"active_devices":   active,
			"inactive_devices": inactive,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)

	for deviceType, count := range byType {
		c.writeAPI.WritePoint(write.NewPoint(
			"registry_stats_by_type",
			map[string]string{"device_type": deviceType},
			map[string]interface{}{"count": count},
			time.Now(),
		))
	}
}

// WriteCommandOutcome records a forwarded command's result.
//
// The duration lets dashboards spot devices that are alive but slow.
func (c *Client) WriteCommandOutcome(deviceID, command string, success bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_outcomes",
		map[string]string{
			"device_id": deviceID,
			"command":   command,
		},
		map[string]interface{}{
			"success":     success,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteEviction records a device being swept out of the registry.
func (c *Client) WriteEviction(deviceID, deviceType string, silentFor time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"evictions",
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
		},
		map[string]interface{}{
			"silent_seconds": int(silentFor.Seconds()),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
