package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrQuotaExceeded) {
//	    // reject the registration with a conflict response
//	}
var (
	// ErrNotFound is returned when a device ID does not exist, or its record
	// has aged past the removal threshold and is awaiting eviction.
	ErrNotFound = errors.New("device: not found")

	// ErrQuotaExceeded is returned when registering a new device would exceed
	// the population cap for its device type.
	ErrQuotaExceeded = errors.New("device: type quota exceeded")

	// ErrUnknownType is returned when a device type has no quota entry.
	ErrUnknownType = errors.New("device: unknown device type")

	// ErrInvalidID is returned when a device ID fails validation.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidAddress is returned when a device address fails validation.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidPort is returned when a device port is out of range.
	ErrInvalidPort = errors.New("device: invalid port")
)
