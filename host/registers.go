package host

import (
	"fmt"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Registers is raw access to a fan device's register map.
type Registers interface {
	// ReadRegister returns the payload of register a.
	ReadRegister(a regmap.Address) ([]byte, error)

	// WriteRegister writes value to register a.
	WriteRegister(a regmap.Address, value uint16) error
}

var _ Registers = (*Session)(nil)

// readWidth is the wLength of a read of a. Undefined registers are read as
// 16-bit values and left for the device to refuse.
func readWidth(a regmap.Address) int {
	if r, ok := regmap.Lookup(a); ok {
		return r.Width
	}
	return 2
}

// ReadRegister reads register a through the session.
func (s *Session) ReadRegister(a regmap.Address) ([]byte, error) {
	buf := make([]byte, readWidth(a))
	var n int
	err := s.Do(func(h hal.Handle, iface uint8) error {
		var setup device.SetupPacket
		device.VendorReadSetup(&setup, iface, uint8(a), uint16(len(buf)))
		var err error
		n, err = h.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, buf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a, err)
	}
	if n < len(buf) {
		return nil, fmt.Errorf("read %s: %d of %d bytes: %w", a, n, len(buf), pkg.ErrProtocol)
	}
	return buf, nil
}

// WriteRegister writes register a through the session.
func (s *Session) WriteRegister(a regmap.Address, value uint16) error {
	err := s.Do(func(h hal.Handle, iface uint8) error {
		var setup device.SetupPacket
		device.VendorWriteSetup(&setup, iface, uint8(a), value)
		_, err := h.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s=%d: %w", a, value, err)
	}
	return nil
}
