package hal

import (
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/ardnew/usbfan/regmap"
)

// Handle is an open connection to one physical device.
type Handle interface {
	// Control performs a control transfer on the default pipe. For
	// device-to-host requests the data stage is read into data; otherwise
	// data is sent. wLength is len(data). It returns the data stage length.
	//
	// An error that means the device is gone while the handle is still
	// open wraps pkg.ErrDeviceRemoved.
	Control(requestType, request uint8, value, index uint16, data []byte) (int, error)

	// Close releases the handle. Close on a handle whose device has
	// vanished still releases it.
	Close() error
}

// Candidate describes a device found by a Transport. Path is meaningful
// only to the transport that produced it.
type Candidate struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
	Version      regmap.Version
	Interface    uint8
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %04x:%04x serial=%s version=%s interface=%d",
		c.Path, c.VendorID, c.ProductID, c.Serial, c.Version, c.Interface)
}

// Transport finds and opens devices.
type Transport interface {
	// Enumerate yields every attached device announcing capability in its
	// BOS descriptor. Devices that cannot be probed are skipped. Stopping
	// the iteration early stops probing.
	Enumerate(capability uuid.UUID) iter.Seq[Candidate]

	// Open opens the device c describes.
	Open(c Candidate) (Handle, error)
}

// Notifier is implemented by transports that learn about attach and
// detach events. The returned channel is closed at the next event; call
// Changed again for the one after.
type Notifier interface {
	Changed() <-chan struct{}
}
