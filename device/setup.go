package device

import "github.com/ardnew/usbfan/device/hal"

// SetupPacket is the USB SETUP packet.
type SetupPacket = hal.SetupPacket

// Standard USB request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// Feature selectors (USB 2.0 Spec Table 9-6).
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
)

// Request type shorthands for the vendor requests the fan interface uses.
const (
	RequestTypeVendorInterfaceIn  = hal.RequestDirectionDeviceToHost | hal.RequestTypeVendor | hal.RequestRecipientInterface
	RequestTypeVendorInterfaceOut = hal.RequestDirectionHostToDevice | hal.RequestTypeVendor | hal.RequestRecipientInterface
	RequestTypeVendorDeviceIn     = hal.RequestDirectionDeviceToHost | hal.RequestTypeVendor | hal.RequestRecipientDevice
)

// GetDescriptorSetup initializes out as a GET_DESCRIPTOR setup packet.
func GetDescriptorSetup(out *SetupPacket, descType, descIndex uint8, length uint16) {
	out.RequestType = hal.RequestDirectionDeviceToHost | hal.RequestTypeStandard | hal.RequestRecipientDevice
	out.Request = RequestGetDescriptor
	out.Value = uint16(descType)<<8 | uint16(descIndex)
	out.Index = 0
	if descType == DescriptorTypeString && descIndex != 0 {
		out.Index = LangIDUSEnglish
	}
	out.Length = length
}

// SetAddressSetup initializes out as a SET_ADDRESS setup packet.
func SetAddressSetup(out *SetupPacket, address uint8) {
	*out = SetupPacket{
		RequestType: hal.RequestDirectionHostToDevice | hal.RequestTypeStandard | hal.RequestRecipientDevice,
		Request:     RequestSetAddress,
		Value:       uint16(address),
	}
}

// SetConfigurationSetup initializes out as a SET_CONFIGURATION setup packet.
func SetConfigurationSetup(out *SetupPacket, config uint8) {
	*out = SetupPacket{
		RequestType: hal.RequestDirectionHostToDevice | hal.RequestTypeStandard | hal.RequestRecipientDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(config),
	}
}

// GetStatusSetup initializes out as a GET_STATUS setup packet.
func GetStatusSetup(out *SetupPacket, recipient uint8, index uint16) {
	*out = SetupPacket{
		RequestType: hal.RequestDirectionDeviceToHost | hal.RequestTypeStandard | recipient,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}
}

// VendorReadSetup initializes out as a vendor IN request to interface
// iface, reading length bytes.
func VendorReadSetup(out *SetupPacket, iface uint8, request uint8, length uint16) {
	*out = SetupPacket{
		RequestType: RequestTypeVendorInterfaceIn,
		Request:     request,
		Index:       uint16(iface),
		Length:      length,
	}
}

// VendorWriteSetup initializes out as a vendor OUT request to interface
// iface carrying value in wValue and no data stage.
func VendorWriteSetup(out *SetupPacket, iface uint8, request uint8, value uint16) {
	*out = SetupPacket{
		RequestType: RequestTypeVendorInterfaceOut,
		Request:     request,
		Value:       value,
		Index:       uint16(iface),
	}
}
