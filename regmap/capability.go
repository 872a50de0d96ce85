package regmap

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// CapabilityUUID identifies the fan register interface in a BOS platform
// capability. Windows also registers it as the device interface GUID.
var CapabilityUUID = uuid.MustParse("1ad9f93b-494c-4dda-a1e5-2e2bab181052")

// BOS descriptor constants (USB 3.2 Spec sections 9.6.2 and 9.6.2.4).
const (
	DescriptorTypeBOS              = 0x0F
	DescriptorTypeDeviceCapability = 0x10
	CapabilityTypePlatform         = 0x05

	BOSHeaderSize        = 5
	platformCapabilityHd = 4  // bLength, bDescriptorType, bDevCapabilityType, bReserved
	platformUUIDSize     = 16 // PlatformCapabilityUUID

	// MinBCDUSB is the lowest bcdUSB at which hosts request a BOS descriptor.
	MinBCDUSB = 0x0201
)

// Capability is the data carried after CapabilityUUID in the platform
// capability: {minor, major, interface}.
type Capability struct {
	Version   Version
	Interface uint8
}

// capabilityDataSize is the minimum payload Capability decodes from.
const capabilityDataSize = 3

// Data returns the capability payload.
func (c Capability) Data() []byte {
	return []byte{c.Version.Minor, c.Version.Major, c.Interface}
}

// Descriptor returns the platform capability descriptor for c.
func (c Capability) Descriptor() []byte {
	return PlatformCapability(CapabilityUUID, c.Data())
}

// UUIDBytesLE returns id in the mixed-endian layout USB descriptors and
// Windows GUID structures use: the first three fields little-endian, the
// rest as-is.
func UUIDBytesLE(id uuid.UUID) [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], binary.BigEndian.Uint32(id[0:4]))
	binary.LittleEndian.PutUint16(b[4:6], binary.BigEndian.Uint16(id[4:6]))
	binary.LittleEndian.PutUint16(b[6:8], binary.BigEndian.Uint16(id[6:8]))
	copy(b[8:], id[8:])
	return b
}

// UUIDFromBytesLE is the inverse of UUIDBytesLE.
func UUIDFromBytesLE(b []byte) (uuid.UUID, bool) {
	var id uuid.UUID
	if len(b) < platformUUIDSize {
		return id, false
	}
	binary.BigEndian.PutUint32(id[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(id[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(id[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(id[8:], b[8:16])
	return id, true
}

// PlatformCapability builds a platform device capability descriptor.
func PlatformCapability(id uuid.UUID, data []byte) []byte {
	n := platformCapabilityHd + platformUUIDSize + len(data)
	buf := make([]byte, n)
	buf[0] = byte(n)
	buf[1] = DescriptorTypeDeviceCapability
	buf[2] = CapabilityTypePlatform
	le := UUIDBytesLE(id)
	copy(buf[platformCapabilityHd:], le[:])
	copy(buf[platformCapabilityHd+platformUUIDSize:], data)
	return buf
}

// BOS assembles a BOS descriptor from capability descriptors.
func BOS(caps ...[]byte) []byte {
	total := BOSHeaderSize
	for _, c := range caps {
		total += len(c)
	}
	buf := make([]byte, BOSHeaderSize, total)
	buf[0] = BOSHeaderSize
	buf[1] = DescriptorTypeBOS
	binary.LittleEndian.PutUint16(buf[2:4], uint16(total))
	buf[4] = byte(len(caps))
	for _, c := range caps {
		buf = append(buf, c...)
	}
	return buf
}

// PlatformData returns the payload of every platform capability in bos
// whose UUID equals id. Malformed trailing capabilities end the scan; a
// malformed header yields nil.
func PlatformData(bos []byte, id uuid.UUID) [][]byte {
	if len(bos) < BOSHeaderSize || bos[0] < BOSHeaderSize || bos[1] != DescriptorTypeBOS {
		return nil
	}
	end := min(len(bos), int(binary.LittleEndian.Uint16(bos[2:4])))
	var found [][]byte
	pos := BOSHeaderSize
	for n := bos[4]; n > 0; n-- {
		remain := end - pos
		if remain < 3 {
			break
		}
		length := int(bos[pos])
		if length < 3 || bos[pos+1] != DescriptorTypeDeviceCapability || length > remain {
			break
		}
		if bos[pos+2] == CapabilityTypePlatform && length >= platformCapabilityHd+platformUUIDSize {
			u, _ := UUIDFromBytesLE(bos[pos+platformCapabilityHd:])
			if u == id {
				found = append(found, bos[pos+platformCapabilityHd+platformUUIDSize:pos+length])
			}
		}
		pos += length
	}
	return found
}

// DecodeCapability decodes a platform capability payload.
func DecodeCapability(data []byte) (Capability, bool) {
	if len(data) < capabilityDataSize {
		return Capability{}, false
	}
	return Capability{
		Version:   Version{Major: data[1], Minor: data[0]},
		Interface: data[2],
	}, true
}

// FindCapabilities decodes every capability in bos announced under id.
func FindCapabilities(bos []byte, id uuid.UUID) []Capability {
	var caps []Capability
	for _, data := range PlatformData(bos, id) {
		if c, ok := DecodeCapability(data); ok {
			caps = append(caps, c)
		}
	}
	return caps
}
