package forward

import "errors"

var (
	// ErrDeviceUnavailable means the target device is registered but not
	// currently classified active, or not registered at all.
	ErrDeviceUnavailable = errors.New("forward: device unavailable")

	// ErrUnknownCommand means the command is not defined for the device's type.
	ErrUnknownCommand = errors.New("forward: unknown command")

	// ErrForwardingFailed means the device was eligible but the relayed
	// request did not complete, timed out, or returned an error status.
	ErrForwardingFailed = errors.New("forward: forwarding failed")
)
