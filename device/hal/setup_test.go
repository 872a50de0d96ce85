package hal

import (
	"bytes"
	"testing"
)

func TestSetupPacket_MarshalParse(t *testing.T) {
	setup := SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeVendor | RequestRecipientInterface,
		Request:     0x12,
		Value:       0x0000,
		Index:       0x0002,
		Length:      2,
	}
	var buf [SetupPacketSize]byte
	if n := setup.MarshalTo(buf[:]); n != SetupPacketSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, SetupPacketSize)
	}
	want := []byte{0xC1, 0x12, 0x00, 0x00, 0x02, 0x00, 0x02, 0x00}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % x, want % x", buf, want)
	}

	var parsed SetupPacket
	if !ParseSetupPacket(buf[:], &parsed) {
		t.Fatal("ParseSetupPacket() = false")
	}
	if parsed != setup {
		t.Errorf("parsed = %+v, want %+v", parsed, setup)
	}
	if ParseSetupPacket(buf[:7], &parsed) {
		t.Error("ParseSetupPacket() accepted 7 bytes")
	}
}

func TestSetupPacket_Fields(t *testing.T) {
	tests := []struct {
		name        string
		requestType uint8
		in          bool
		vendor      bool
		iface       bool
		device      bool
	}{
		{"vendor read", 0xC1, true, true, true, false},
		{"vendor write", 0x41, false, true, true, false},
		{"MS OS descriptor", 0xC0, true, true, false, true},
		{"standard device", 0x80, true, false, false, true},
		{"class interface", 0x21, false, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SetupPacket{RequestType: tt.requestType}
			if got := s.IsDeviceToHost(); got != tt.in {
				t.Errorf("IsDeviceToHost() = %v, want %v", got, tt.in)
			}
			if got := s.IsVendor(); got != tt.vendor {
				t.Errorf("IsVendor() = %v, want %v", got, tt.vendor)
			}
			if got := s.IsInterfaceRecipient(); got != tt.iface {
				t.Errorf("IsInterfaceRecipient() = %v, want %v", got, tt.iface)
			}
			if got := s.IsDeviceRecipient(); got != tt.device {
				t.Errorf("IsDeviceRecipient() = %v, want %v", got, tt.device)
			}
		})
	}
}

func TestSetupPacket_String(t *testing.T) {
	s := SetupPacket{RequestType: 0x41, Request: 0xf1, Value: 3, Index: 2}
	want := "SETUP[OUT Vendor Interface] Request=0xF1 Value=0x0003 Index=0x0002 Length=0"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSetupPacket_Descriptor(t *testing.T) {
	s := SetupPacket{Value: 0x0F00, Index: 0x0107}
	if s.DescriptorType() != 0x0F || s.DescriptorIndex() != 0 {
		t.Errorf("descriptor = %02x/%d, want 0f/0", s.DescriptorType(), s.DescriptorIndex())
	}
	if s.InterfaceNumber() != 0x07 {
		t.Errorf("InterfaceNumber() = %d, want 7", s.InterfaceNumber())
	}
}
