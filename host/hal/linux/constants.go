package linux

import "time"

// =============================================================================
// System Paths
// =============================================================================

// SysfsUSBPath is the base path for USB devices in sysfs.
const SysfsUSBPath = "/sys/bus/usb/devices"

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

// =============================================================================
// Transfers
// =============================================================================

// DefaultTimeout bounds a single control transfer.
const DefaultTimeout = 1000 * time.Millisecond

// maxControlTransferSize is the largest data stage usbfs accepts on the
// default pipe.
const maxControlTransferSize = 4096

// =============================================================================
// Netlink
// =============================================================================

// ueventBufferSize is the receive buffer for one uevent message.
const ueventBufferSize = 4096

// ueventPollInterval bounds how long the hotplug reader blocks before it
// checks for shutdown.
const ueventPollInterval = 250 * time.Millisecond
