package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/usbfan/pkg"
)

func TestDeviceDescriptor_MarshalParse(t *testing.T) {
	original := &DeviceDescriptor{
		USBVersion:        USBVersionBOS,
		MaxPacketSize0:    64,
		VendorID:          0x1209,
		ProductID:         0x5a1e,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}

	var buf [DeviceDescriptorSize]byte
	if n := original.MarshalTo(buf[:]); n != DeviceDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, DeviceDescriptorSize)
	}
	if buf[0] != DeviceDescriptorSize || buf[1] != DescriptorTypeDevice {
		t.Errorf("header = % x, want 12 01", buf[:2])
	}
	if !bytes.Equal(buf[2:4], []byte{0x01, 0x02}) {
		t.Errorf("bcdUSB = % x, want 01 02", buf[2:4])
	}

	var parsed DeviceDescriptor
	if err := ParseDeviceDescriptor(buf[:], &parsed); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if parsed.VendorID != original.VendorID || parsed.ProductID != original.ProductID {
		t.Errorf("parsed IDs = %04x:%04x, want %04x:%04x",
			parsed.VendorID, parsed.ProductID, original.VendorID, original.ProductID)
	}
	if parsed.SerialNumberIndex != 3 {
		t.Errorf("SerialNumberIndex = %d, want 3", parsed.SerialNumberIndex)
	}
}

func TestParseDeviceDescriptor_Errors(t *testing.T) {
	wrongType := make([]byte, DeviceDescriptorSize)
	wrongType[0] = DeviceDescriptorSize
	wrongType[1] = DescriptorTypeConfiguration

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", make([]byte, 10), pkg.ErrDescriptorTooShort},
		{"wrong type", wrongType, pkg.ErrDescriptorTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DeviceDescriptor
			if err := ParseDeviceDescriptor(tt.data, &d); !errors.Is(err, tt.want) {
				t.Errorf("ParseDeviceDescriptor() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInterfaceDescriptor_VendorClass(t *testing.T) {
	desc := InterfaceDescriptor{
		InterfaceNumber:   2,
		InterfaceClass:    ClassVendor,
		InterfaceSubClass: 0xFD,
		InterfaceProtocol: 0xFF,
	}
	var buf [InterfaceDescriptorSize]byte
	desc.MarshalTo(buf[:])
	want := []byte{0x09, 0x04, 0x02, 0x00, 0x00, 0xFF, 0xFD, 0xFF, 0x00}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % x, want % x", buf, want)
	}

	var parsed InterfaceDescriptor
	if err := ParseInterfaceDescriptor(buf[:], &parsed); err != nil {
		t.Fatalf("ParseInterfaceDescriptor() error = %v", err)
	}
	if parsed != (InterfaceDescriptor{
		Length:            InterfaceDescriptorSize,
		DescriptorType:    DescriptorTypeInterface,
		InterfaceNumber:   2,
		InterfaceClass:    ClassVendor,
		InterfaceSubClass: 0xFD,
		InterfaceProtocol: 0xFF,
	}) {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestStringDescriptor(t *testing.T) {
	tests := []struct {
		name string
		s    string
	}{
		{"ascii", "0123456789ABCDEV"},
		{"empty", ""},
		{"non-bmp", "fan \U0001F300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [256]byte
			n := StringDescriptorTo(buf[:], tt.s)
			if n == 0 {
				t.Fatal("StringDescriptorTo() = 0")
			}
			if int(buf[0]) != n || buf[1] != DescriptorTypeString {
				t.Errorf("header = % x, want %02x 03", buf[:2], n)
			}
			got, err := ParseStringDescriptor(buf[:n])
			if err != nil {
				t.Fatalf("ParseStringDescriptor() error = %v", err)
			}
			if got != tt.s {
				t.Errorf("ParseStringDescriptor() = %q, want %q", got, tt.s)
			}
		})
	}
}

func TestStringDescriptorTo_BufferTooSmall(t *testing.T) {
	var buf [4]byte
	if n := StringDescriptorTo(buf[:], "too long"); n != 0 {
		t.Errorf("StringDescriptorTo() = %d, want 0", n)
	}
}

func TestLanguageDescriptorTo(t *testing.T) {
	var buf [4]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)
	want := []byte{0x04, 0x03, 0x09, 0x04}
	if n != 4 || !bytes.Equal(buf[:], want) {
		t.Errorf("LanguageDescriptorTo() = % x (%d), want % x", buf[:n], n, want)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateAttached, "Attached"},
		{StateDefault, "Default"},
		{StateAddress, "Address"},
		{StateConfigured, "Configured"},
		{State(99), "Unknown State (99)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
