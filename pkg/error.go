package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates the device stalled a control request.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrProtocol indicates a malformed exchange on the control pipe.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates nothing is attached at the other end of a bus.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrInvalidRequest indicates a SETUP request no handler accepted.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the stack is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")
)

// Register protocol errors.
var (
	// ErrNotSupported indicates an unknown register or an operation the
	// register does not allow.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrIncompatibleVersion indicates the firmware interface version is not
	// one this host understands.
	ErrIncompatibleVersion = errors.New("incompatible interface version")
)

// Session errors.
var (
	// ErrDeviceRemoved is the removal signal: the handle is still open but
	// the device behind it no longer answers. Transports wrap their
	// platform error with it.
	ErrDeviceRemoved = errors.New("device removed")

	// ErrDeviceAbsent indicates no attached device matched the session's
	// serial identifier. The condition is expected to be temporary.
	ErrDeviceAbsent = errors.New("device absent")

	// ErrClosed indicates the session or transport has been closed.
	ErrClosed = errors.New("closed")
)

// IsRemoval reports whether err carries the removal signal.
func IsRemoval(err error) bool {
	return errors.Is(err, ErrDeviceRemoved)
}
