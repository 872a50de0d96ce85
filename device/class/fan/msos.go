package fan

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/ardnew/usbfan/regmap"
)

// MSOSCapability returns the platform capability descriptor that points
// Windows at the descriptor set served on MSOSVendorCode.
func MSOSCapability() []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], MSOSWindowsVersion)
	binary.LittleEndian.PutUint16(data[4:6], MSOSSetLength)
	data[6] = MSOSVendorCode
	data[7] = 0 // bAltEnumCode
	return regmap.PlatformCapability(MSOSPlatformUUID, data)
}

// BOS returns the BOS descriptor of a device exposing the fan interface
// at iface.
func BOS(iface uint8) []byte {
	fan := regmap.Capability{Version: regmap.CurrentVersion, Interface: iface}
	return regmap.BOS(MSOSCapability(), fan.Descriptor())
}

// DescriptorSet builds the Microsoft OS 2.0 descriptor set for a function
// whose first interface is iface. It declares WinUSB compatibility and
// registers guid as the device interface GUID.
func DescriptorSet(iface uint8, guid uuid.UUID) []byte {
	name := utf16z("DeviceInterfaceGUIDs")
	value := utf16z("{"+strings.ToUpper(guid.String())+"}", "")

	propLen := msosPropertyHeaderSize + len(name) + len(value)
	funcLen := msosSubsetHeaderSize + msosCompatibleIDSize + propLen
	confLen := msosSubsetHeaderSize + funcLen
	total := msosSetHeaderSize + confLen

	buf := make([]byte, 0, total)
	le := binary.LittleEndian

	// set header
	buf = le.AppendUint16(buf, msosSetHeaderSize)
	buf = le.AppendUint16(buf, msosSetHeader)
	buf = le.AppendUint32(buf, MSOSWindowsVersion)
	buf = le.AppendUint16(buf, uint16(total))

	// configuration subset
	buf = le.AppendUint16(buf, msosSubsetHeaderSize)
	buf = le.AppendUint16(buf, msosSubsetConfiguration)
	buf = append(buf, 0, 0) // bConfigurationValue, bReserved
	buf = le.AppendUint16(buf, uint16(confLen))

	// function subset
	buf = le.AppendUint16(buf, msosSubsetHeaderSize)
	buf = le.AppendUint16(buf, msosSubsetFunction)
	buf = append(buf, iface, 0)
	buf = le.AppendUint16(buf, uint16(funcLen))

	// compatible ID
	buf = le.AppendUint16(buf, msosCompatibleIDSize)
	buf = le.AppendUint16(buf, msosCompatibleID)
	var ids [16]byte
	copy(ids[:8], "WINUSB")
	buf = append(buf, ids[:]...)

	// registry property
	buf = le.AppendUint16(buf, uint16(propLen))
	buf = le.AppendUint16(buf, msosRegistryProperty)
	buf = le.AppendUint16(buf, regMultiSZ)
	buf = le.AppendUint16(buf, uint16(len(name)))
	buf = append(buf, name...)
	buf = le.AppendUint16(buf, uint16(len(value)))
	buf = append(buf, value...)

	return buf
}

// utf16z encodes each string as NUL-terminated UTF-16LE and concatenates
// them.
func utf16z(ss ...string) []byte {
	var buf []byte
	for _, s := range ss {
		for _, u := range utf16.Encode([]rune(s)) {
			buf = binary.LittleEndian.AppendUint16(buf, u)
		}
		buf = append(buf, 0, 0)
	}
	return buf
}
