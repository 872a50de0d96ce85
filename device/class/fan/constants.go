package fan

import (
	"github.com/google/uuid"

	"github.com/ardnew/usbfan/device"
)

// Interface descriptor codes.
const (
	InterfaceClass    = device.ClassVendor
	InterfaceSubClass = 0xFD
	InterfaceProtocol = 0xFF
)

// Microsoft OS 2.0 descriptor constants.
const (
	// MSOSVendorCode is the bRequest of the vendor request that retrieves
	// the descriptor set.
	MSOSVendorCode = 0x02

	// MSOSDescriptorIndex is the wIndex that selects the descriptor set.
	MSOSDescriptorIndex = 0x07

	// MSOSWindowsVersion is the minimum Windows version (8.1) the set
	// applies to.
	MSOSWindowsVersion = 0x06030000

	// MSOSSetLength is the total length of the descriptor set.
	MSOSSetLength = 0xB2
)

// MS OS 2.0 descriptor types.
const (
	msosSetHeader           = 0x00
	msosSubsetConfiguration = 0x01
	msosSubsetFunction      = 0x02
	msosCompatibleID        = 0x03
	msosRegistryProperty    = 0x04
)

// Sizes of the fixed parts of the MS OS 2.0 descriptors.
const (
	msosSetHeaderSize      = 10
	msosSubsetHeaderSize   = 8
	msosCompatibleIDSize   = 20
	msosPropertyHeaderSize = 10
)

// regMultiSZ is the registry type of DeviceInterfaceGUIDs.
const regMultiSZ = 7

// MSOSPlatformUUID identifies the Microsoft OS 2.0 platform capability.
var MSOSPlatformUUID = uuid.MustParse("d8dd60df-4589-4cc7-9cd2-659d9e648a9f")
