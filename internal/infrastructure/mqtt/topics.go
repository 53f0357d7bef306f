package mqtt

import "fmt"

// Topic prefixes for the vanmesh MQTT hierarchy.
//
// Scheme: vanmesh/{category}/{device_id_or_type}
const (
	// TopicPrefix is the base for all vanmesh topics.
	TopicPrefix = "vanmesh"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "vanmesh/system"
)

// Topics provides builders for vanmesh MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// SystemStatus returns the coordinator's own status topic.
// Carries the online/offline payload and the Last Will message.
//
// Example: vanmesh/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceHeartbeat returns the heartbeat topic a device publishes on.
// Devices without an HTTP stack announce presence here instead of the
// registration endpoint.
//
// Example: vanmesh/heartbeat/cam1
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/heartbeat/%s", TopicPrefix, deviceID)
}

// AllDeviceHeartbeats returns the wildcard pattern covering every
// device heartbeat topic.
//
// Example: vanmesh/heartbeat/+
func (Topics) AllDeviceHeartbeats() string {
	return TopicPrefix + "/heartbeat/+"
}

// DeviceStatus returns the topic carrying a device's derived liveness.
// Published retained so late subscribers see the last known state.
//
// Example: vanmesh/device/cam1/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, deviceID)
}

// Event returns the topic for registry lifecycle events.
//
// Example: vanmesh/event/device_evicted
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}
