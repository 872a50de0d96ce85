// Package fan implements the vendor-specific fan register interface for
// the usbfan device stack.
//
// The interface has no endpoints of its own. Every register access is a
// vendor control transfer on the default pipe, addressed to the interface:
//
//	read:  bmRequestType 0xC1, bRequest = register, wIndex = interface
//	write: bmRequestType 0x41, bRequest = register, wValue = value
//
// Hosts locate the interface through a platform capability in the BOS
// descriptor (see BOS). A second platform capability announces a
// Microsoft OS 2.0 descriptor set so that Windows binds WinUSB and
// registers regmap.CapabilityUUID as the device interface GUID without an
// INF file.
//
// # Usage
//
//	driver := fan.New(controller)
//	dev, err := device.NewDeviceBuilder().
//	    WithVendorProduct(0x1209, 0xFA40).
//	    WithStrings("ardnew", "USB Fan", controller.ShortName()).
//	    WithBOS(fan.BOS(0)).
//	    AddConfiguration(1).
//	    AddInterface(fan.InterfaceClass, fan.InterfaceSubClass, fan.InterfaceProtocol).
//	    WithClassDriver(driver).
//	    Build(ctx)
package fan
