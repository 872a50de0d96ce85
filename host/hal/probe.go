package hal

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// maxStringDescriptor is the largest string descriptor a device can return.
const maxStringDescriptor = 255

// GetDescriptor issues GET_DESCRIPTOR for (descType, descIndex) into buf.
func GetDescriptor(h Handle, descType, descIndex uint8, buf []byte) (int, error) {
	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, descType, descIndex, uint16(len(buf)))
	return h.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, buf)
}

// ReadDeviceDescriptor reads and parses the device descriptor.
func ReadDeviceDescriptor(h Handle) (device.DeviceDescriptor, error) {
	var (
		buf  [device.DeviceDescriptorSize]byte
		desc device.DeviceDescriptor
	)
	n, err := GetDescriptor(h, device.DescriptorTypeDevice, 0, buf[:])
	if err != nil {
		return desc, fmt.Errorf("device descriptor: %w", err)
	}
	if err := device.ParseDeviceDescriptor(buf[:n], &desc); err != nil {
		return desc, fmt.Errorf("device descriptor: %w", err)
	}
	return desc, nil
}

// ReadBOS reads the complete BOS descriptor: the header first, then
// wTotalLength bytes.
func ReadBOS(h Handle) ([]byte, error) {
	var hdr [regmap.BOSHeaderSize]byte
	n, err := GetDescriptor(h, regmap.DescriptorTypeBOS, 0, hdr[:])
	if err != nil {
		return nil, fmt.Errorf("BOS header: %w", err)
	}
	if n < regmap.BOSHeaderSize || hdr[1] != regmap.DescriptorTypeBOS {
		return nil, fmt.Errorf("BOS header: %w", pkg.ErrDescriptorTooShort)
	}
	total := binary.LittleEndian.Uint16(hdr[2:4])
	if total < regmap.BOSHeaderSize {
		return nil, fmt.Errorf("BOS length %d: %w", total, pkg.ErrProtocol)
	}
	buf := make([]byte, total)
	n, err = GetDescriptor(h, regmap.DescriptorTypeBOS, 0, buf)
	if err != nil {
		return nil, fmt.Errorf("BOS: %w", err)
	}
	return buf[:n], nil
}

// ReadString reads string descriptor index in US English. Index 0 reads
// as the empty string.
func ReadString(h Handle, index uint8) (string, error) {
	if index == 0 {
		return "", nil
	}
	var buf [maxStringDescriptor]byte
	n, err := GetDescriptor(h, device.DescriptorTypeString, index, buf[:])
	if err != nil {
		return "", fmt.Errorf("string %d: %w", index, err)
	}
	s, err := device.ParseStringDescriptor(buf[:n])
	if err != nil {
		return "", fmt.Errorf("string %d: %w", index, err)
	}
	return s, nil
}

// Probe identifies the device behind h. It fails with pkg.ErrNotSupported
// when the device does not announce capability. Path is left empty for
// the caller to fill in.
func Probe(h Handle, capability uuid.UUID) (Candidate, error) {
	var c Candidate
	desc, err := ReadDeviceDescriptor(h)
	if err != nil {
		return c, err
	}
	c.VendorID = desc.VendorID
	c.ProductID = desc.ProductID
	if desc.USBVersion < regmap.MinBCDUSB {
		return c, fmt.Errorf("bcdUSB %04x has no BOS: %w", desc.USBVersion, pkg.ErrNotSupported)
	}

	bos, err := ReadBOS(h)
	if err != nil {
		return c, err
	}
	caps := regmap.FindCapabilities(bos, capability)
	if len(caps) == 0 {
		return c, fmt.Errorf("capability %s: %w", capability, pkg.ErrNotSupported)
	}
	c.Version = caps[0].Version
	c.Interface = caps[0].Interface

	if c.Serial, err = ReadString(h, desc.SerialNumberIndex); err != nil {
		return c, err
	}
	// Names are informational.
	c.Manufacturer, _ = ReadString(h, desc.ManufacturerIndex)
	c.Product, _ = ReadString(h, desc.ProductIndex)
	return c, nil
}
