package device

import (
	"context"

	"github.com/ardnew/usbfan/pkg"
)

// String descriptor indexes assigned by DeviceBuilder.WithStrings.
const (
	StringIndexManufacturer = 1
	StringIndexProduct      = 2
	StringIndexSerialNumber = 3
)

// DeviceBuilder assembles a Device. The first error sticks and is returned
// by Build; later calls are no-ops.
type DeviceBuilder struct {
	device *Device
	config *Configuration
	iface  *Interface
	err    error
}

// NewDeviceBuilder returns an empty builder. WithVendorProduct must come
// first.
func NewDeviceBuilder() *DeviceBuilder { return &DeviceBuilder{} }

// ok records err unless one is already recorded and reports whether the
// builder may proceed.
func (b *DeviceBuilder) ok(err error) bool {
	if b.err == nil {
		b.err = err
	}
	return b.err == nil
}

func (b *DeviceBuilder) needDevice() bool {
	if b.device == nil {
		return b.ok(pkg.ErrInvalidState)
	}
	return b.ok(nil)
}

// WithVendorProduct creates the device descriptor with the given IDs.
func (b *DeviceBuilder) WithVendorProduct(vendorID, productID uint16) *DeviceBuilder {
	if b.device == nil {
		b.device = NewDevice(&DeviceDescriptor{
			Length:         DeviceDescriptorSize,
			DescriptorType: DescriptorTypeDevice,
			USBVersion:     0x0200,
			MaxPacketSize0: MaxPacketSize0,
		})
	}
	b.device.Descriptor.VendorID = vendorID
	b.device.Descriptor.ProductID = productID
	return b
}

// WithDeviceVersion sets bcdDevice.
func (b *DeviceBuilder) WithDeviceVersion(bcd uint16) *DeviceBuilder {
	if b.needDevice() {
		b.device.Descriptor.DeviceVersion = bcd
	}
	return b
}

// WithStrings installs US English strings. Empty strings get no index.
func (b *DeviceBuilder) WithStrings(manufacturer, product, serial string) *DeviceBuilder {
	if !b.needDevice() || !b.ok(b.device.SetLanguages(LangIDUSEnglish)) {
		return b
	}
	desc := b.device.Descriptor
	for _, s := range []struct {
		index uint8
		field *uint8
		text  string
	}{
		{StringIndexManufacturer, &desc.ManufacturerIndex, manufacturer},
		{StringIndexProduct, &desc.ProductIndex, product},
		{StringIndexSerialNumber, &desc.SerialNumberIndex, serial},
	} {
		if s.text == "" {
			continue
		}
		if !b.ok(b.device.SetString(s.index, s.text)) {
			return b
		}
		*s.field = s.index
	}
	return b
}

// WithBOS attaches a BOS descriptor and raises bcdUSB to 2.01 so hosts ask
// for it.
func (b *DeviceBuilder) WithBOS(bos []byte) *DeviceBuilder {
	if !b.needDevice() {
		return b
	}
	if b.device.Descriptor.USBVersion < USBVersionBOS {
		b.device.Descriptor.USBVersion = USBVersionBOS
	}
	b.device.SetBOS(bos)
	return b
}

// AddConfiguration starts configuration value. Interfaces added next
// belong to it.
func (b *DeviceBuilder) AddConfiguration(value uint8) *DeviceBuilder {
	if !b.needDevice() {
		return b
	}
	c := NewConfiguration(value)
	if b.ok(b.device.AddConfiguration(c)) {
		b.config, b.iface = c, nil
	}
	return b
}

// AddInterface appends an interface to the current configuration.
func (b *DeviceBuilder) AddInterface(class, subClass, protocol uint8) *DeviceBuilder {
	if b.config == nil {
		b.ok(pkg.ErrInvalidState)
		return b
	}
	iface := NewInterface(&InterfaceDescriptor{
		Length:            InterfaceDescriptorSize,
		DescriptorType:    DescriptorTypeInterface,
		InterfaceNumber:   uint8(b.config.NumInterfaces()),
		InterfaceClass:    class,
		InterfaceSubClass: subClass,
		InterfaceProtocol: protocol,
	})
	if b.ok(b.config.AddInterface(iface)) {
		b.iface = iface
	}
	return b
}

// WithClassDriver binds driver to the current interface.
func (b *DeviceBuilder) WithClassDriver(driver ClassDriver) *DeviceBuilder {
	if b.iface == nil {
		b.ok(pkg.ErrInvalidState)
		return b
	}
	b.ok(b.iface.SetClassDriver(driver))
	return b
}

// Build returns the device or the first error recorded.
func (b *DeviceBuilder) Build(ctx context.Context) (*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.device == nil {
		return nil, pkg.ErrInvalidState
	}
	return b.device, nil
}
