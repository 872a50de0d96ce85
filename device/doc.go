// Package device implements a pure-Go USB device stack for control-only
// devices.
//
// It is platform-agnostic and reaches hardware through the
// [hal.DeviceHAL] interface defined in the
// [github.com/ardnew/usbfan/device/hal] package.
//
// # Architecture
//
//   - [Device] holds descriptors, string descriptors, the BOS, and the
//     USB device state
//   - [Stack] runs the control pipe: it reads each SETUP packet, answers
//     standard requests through [StandardRequestHandler], and routes class
//     and vendor requests to the [ClassDriver] of the addressed interface.
//     Device-recipient class and vendor requests go to every driver in
//     turn until one handles them.
//
// # Device States
//
//	Attached → Powered → Default → Address → Configured
//
// # Class Drivers
//
//	type ClassDriver interface {
//	    Init(iface *Interface) error
//	    HandleSetup(iface *Interface, setup *SetupPacket, data []byte) ([]byte, bool, error)
//	    Close() error
//	}
//
// The fan controller's vendor interface lives in
// [github.com/ardnew/usbfan/device/class/fan].
//
// # Example
//
//	dev, err := device.NewDeviceBuilder().
//	    WithVendorProduct(0x1209, 0x0001).
//	    WithStrings("Vendor", "Product", serial).
//	    WithBOS(bos).
//	    AddConfiguration(1).
//	    AddInterface(device.ClassVendor, 0xFD, 0xFF).
//	    WithClassDriver(driver).
//	    Build(ctx)
//	stack := device.NewStack(dev, port)
//	stack.Start(ctx)
package device
