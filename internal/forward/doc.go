// Package forward relays control commands from the coordinator to
// registered devices over HTTP.
//
// Each device type declares a small command vocabulary mapped onto paths
// the device firmware serves. The forwarder checks the target is
// registered and active before dialling, applies a per-request timeout,
// and records the outcome against the device's consecutive failure
// counter so repeated delivery failures demote the device to inactive.
package forward
