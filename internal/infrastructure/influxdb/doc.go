// Package influxdb records registry telemetry in InfluxDB v2:
// population snapshots per sweep, forwarded command outcomes, and
// evictions. The integration is optional; when disabled the rest of the
// service runs unchanged.
//
// Writes use the non-blocking batched API so telemetry can never stall
// a registration or a command.
package influxdb
