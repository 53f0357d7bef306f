package device

import (
	"fmt"
	"net"
	"regexp"
)

// maxIDLength bounds caller-supplied identifiers to keep log lines and
// MQTT topics sane.
const maxIDLength = 64

// idPattern matches identifiers like "rear-cam-01". Leading/trailing
// separators are rejected.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]*[a-zA-Z0-9])?$`)

// ValidateID checks that a device ID is non-empty, within length limits,
// and uses only safe characters.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q contains unsupported characters", ErrInvalidID, id)
	}
	return nil
}

// ValidateAddress checks that an address is a parseable IP or a plausible
// hostname. Devices on the coordinator's Wi-Fi network usually register
// with a bare IPv4 address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidAddress)
	}
	if ip := net.ParseIP(address); ip != nil {
		return nil
	}
	// Fall back to hostname validation for devices with local DNS names.
	if len(address) > 253 {
		return fmt.Errorf("%w: hostname too long", ErrInvalidAddress)
	}
	if !hostnamePattern.MatchString(address) {
		return fmt.Errorf("%w: %q is neither an IP address nor a hostname", ErrInvalidAddress, address)
	}
	return nil
}

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

// ValidatePort checks that a port is in the valid TCP range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d is outside 1-65535", ErrInvalidPort, port)
	}
	return nil
}

// ValidateRegistration checks all caller-supplied registration fields.
// Device type recognition is checked separately by the Registry, which
// owns the quota table.
func ValidateRegistration(id, address string, port int) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := ValidateAddress(address); err != nil {
		return err
	}
	return ValidatePort(port)
}
