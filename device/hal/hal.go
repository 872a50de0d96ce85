package hal

import (
	"context"
)

// DeviceHAL is the control-endpoint interface a USB device controller
// exposes to the device stack.
//
// All methods should be safe for concurrent use where applicable.
type DeviceHAL interface {
	// Init initializes the USB controller hardware.
	// The context can be used to cancel initialization.
	Init(ctx context.Context) error

	// Start enables the USB controller and attaches to the bus.
	// After Start returns, the device should be visible to the host.
	Start() error

	// Stop detaches from the bus and disables the USB controller.
	Stop() error

	// SetAddress sets the device address in hardware. The stack calls it
	// after the status stage of SET_ADDRESS.
	SetAddress(address uint8) error

	// ReadSetup reads a SETUP packet from EP0.
	// Blocks until a SETUP packet is available or the context is cancelled.
	// It returns pkg.ErrReset once after each bus reset.
	ReadSetup(ctx context.Context, out *SetupPacket) error

	// WriteEP0 writes data to EP0 (control IN phase).
	WriteEP0(ctx context.Context, data []byte) error

	// ReadEP0 reads data from EP0 (control OUT phase). A zero-length buf
	// reads the status stage of an IN transfer.
	// Returns the number of bytes read into buf.
	ReadEP0(ctx context.Context, buf []byte) (int, error)

	// StallEP0 stalls the control endpoint to indicate an error.
	StallEP0() error

	// AckEP0 sends a zero-length packet to acknowledge a successful control transfer.
	AckEP0() error

	// IsConnected returns true if the device is connected to a host.
	IsConnected() bool
}
