// Package linux is a host transport for Linux using usbfs.
//
// Devices are discovered through sysfs (/sys/bus/usb/devices) and opened
// through their device nodes (/dev/bus/usb/BBB/DDD). Only control
// transfers on the default pipe are issued, with USBDEVFS_CONTROL, so no
// endpoint is claimed and no kernel driver is detached; the kernel claims
// the fan interface on the first transfer addressed to it. No cgo is
// required.
//
// # Requirements
//
// The user must have read/write access to the fan's device node. A udev
// rule matching the vendor and product ID is the usual way:
//
//	SUBSYSTEM=="usb", ATTR{idVendor}=="2341", ATTR{idProduct}=="8036", MODE="0660", GROUP="plugdev"
//
// # Removal
//
// A transfer on a node whose device was unplugged fails with ENODEV, or
// with ESHUTDOWN when the host controller has already shut the endpoint
// down. Both are reported as pkg.ErrDeviceRemoved. EPIPE (a stalled
// request) is reported as pkg.ErrStall and ETIMEDOUT as pkg.ErrTimeout.
//
// # Hotplug
//
// [Transport.WatchHotplug] listens for kernel uevents on a netlink socket
// and makes [Transport.Changed] fire on every USB device add or remove.
package linux
