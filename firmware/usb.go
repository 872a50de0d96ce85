package firmware

import (
	"context"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/device/class/fan"
)

// USB identity of the controller. The IDs are those of the ATmega32U4
// boards the controller runs on.
const (
	VendorID      = 0x2341
	ProductID     = 0x8036
	DeviceVersion = 0x0100
	Manufacturer  = "usbfan"
	Product       = "USB PWM Fan Controller"

	// FanInterface is the number of the fan register interface.
	FanInterface = 0
)

// NewUSBDevice builds the USB device that serves ctrl's registers over the
// vendor fan interface. Its serial number is ctrl's short name.
func NewUSBDevice(ctx context.Context, ctrl *Controller) (*device.Device, error) {
	return device.NewDeviceBuilder().
		WithVendorProduct(VendorID, ProductID).
		WithDeviceVersion(DeviceVersion).
		WithStrings(Manufacturer, Product, ctrl.ShortName()).
		WithBOS(fan.BOS(FanInterface)).
		AddConfiguration(1).
		AddInterface(fan.InterfaceClass, fan.InterfaceSubClass, fan.InterfaceProtocol).
		WithClassDriver(fan.New(ctrl)).
		Build(ctx)
}
