package fan

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

var wantBOS = []byte{
	0x05, 0x0f, 0x38, 0x00, 0x02, 0x1c, 0x10, 0x05,
	0x00, 0xdf, 0x60, 0xdd, 0xd8, 0x89, 0x45, 0xc7,
	0x4c, 0x9c, 0xd2, 0x65, 0x9d, 0x9e, 0x64, 0x8a,
	0x9f, 0x00, 0x00, 0x03, 0x06, 0xb2, 0x00, 0x02,
	0x00, 0x17, 0x10, 0x05, 0x00, 0x3b, 0xf9, 0xd9,
	0x1a, 0x4c, 0x49, 0xda, 0x4d, 0xa1, 0xe5, 0x2e,
	0x2b, 0xab, 0x18, 0x10, 0x52, 0x00, 0x01, 0x02,
}

var wantDescriptorSet = []byte{
	0x0a, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x06,
	0xb2, 0x00, 0x08, 0x00, 0x01, 0x00, 0x00, 0x00,
	0xa8, 0x00, 0x08, 0x00, 0x02, 0x00, 0x02, 0x00,
	0xa0, 0x00, 0x14, 0x00, 0x03, 0x00, 0x57, 0x49,
	0x4e, 0x55, 0x53, 0x42, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x84, 0x00,
	0x04, 0x00, 0x07, 0x00, 0x2a, 0x00, 0x44, 0x00,
	0x65, 0x00, 0x76, 0x00, 0x69, 0x00, 0x63, 0x00,
	0x65, 0x00, 0x49, 0x00, 0x6e, 0x00, 0x74, 0x00,
	0x65, 0x00, 0x72, 0x00, 0x66, 0x00, 0x61, 0x00,
	0x63, 0x00, 0x65, 0x00, 0x47, 0x00, 0x55, 0x00,
	0x49, 0x00, 0x44, 0x00, 0x73, 0x00, 0x00, 0x00,
	0x50, 0x00, 0x7b, 0x00, 0x31, 0x00, 0x41, 0x00,
	0x44, 0x00, 0x39, 0x00, 0x46, 0x00, 0x39, 0x00,
	0x33, 0x00, 0x42, 0x00, 0x2d, 0x00, 0x34, 0x00,
	0x39, 0x00, 0x34, 0x00, 0x43, 0x00, 0x2d, 0x00,
	0x34, 0x00, 0x44, 0x00, 0x44, 0x00, 0x41, 0x00,
	0x2d, 0x00, 0x41, 0x00, 0x31, 0x00, 0x45, 0x00,
	0x35, 0x00, 0x2d, 0x00, 0x32, 0x00, 0x45, 0x00,
	0x32, 0x00, 0x42, 0x00, 0x41, 0x00, 0x42, 0x00,
	0x31, 0x00, 0x38, 0x00, 0x31, 0x00, 0x30, 0x00,
	0x35, 0x00, 0x32, 0x00, 0x7d, 0x00, 0x00, 0x00,
	0x00, 0x00,
}

func TestBOS(t *testing.T) {
	got := BOS(2)
	if !bytes.Equal(got, wantBOS) {
		t.Errorf("BOS(2) =\n% x\nwant\n% x", got, wantBOS)
	}
	caps := regmap.FindCapabilities(got, regmap.CapabilityUUID)
	if len(caps) != 1 || caps[0].Interface != 2 || caps[0].Version != regmap.CurrentVersion {
		t.Errorf("FindCapabilities(BOS(2)) = %+v", caps)
	}
}

func TestDescriptorSet(t *testing.T) {
	got := DescriptorSet(2, regmap.CapabilityUUID)
	if len(got) != MSOSSetLength {
		t.Errorf("len(DescriptorSet()) = %d, want %d", len(got), MSOSSetLength)
	}
	if !bytes.Equal(got, wantDescriptorSet) {
		t.Errorf("DescriptorSet(2) =\n% x\nwant\n% x", got, wantDescriptorSet)
	}
}

type fakeRegisters struct {
	values map[regmap.Address]uint16
	writes []regmap.Address
}

func (r *fakeRegisters) ReadRegister(addr regmap.Address, buf []byte) (int, error) {
	if addr == regmap.AddrShortName {
		return copy(buf, "0123456789ABCDEF"), nil
	}
	v, ok := r.values[addr]
	if !ok {
		return 0, pkg.ErrNotSupported
	}
	buf[0], buf[1] = byte(v), byte(v>>8)
	return 2, nil
}

func (r *fakeRegisters) WriteRegister(addr regmap.Address, value uint16) error {
	if _, ok := r.values[addr]; !ok {
		return pkg.ErrNotSupported
	}
	r.values[addr] = value
	r.writes = append(r.writes, addr)
	return nil
}

func newTestFan(t *testing.T) (*Fan, *device.Interface, *fakeRegisters) {
	t.Helper()
	regs := &fakeRegisters{values: map[regmap.Address]uint16{
		regmap.AddrDuty0:  320,
		regmap.AddrPeriod: 640,
	}}
	f := New(regs)
	iface := device.NewInterface(&device.InterfaceDescriptor{
		InterfaceNumber:   1,
		InterfaceClass:    InterfaceClass,
		InterfaceSubClass: InterfaceSubClass,
		InterfaceProtocol: InterfaceProtocol,
	})
	if err := iface.SetClassDriver(f); err != nil {
		t.Fatalf("SetClassDriver() error = %v", err)
	}
	return f, iface, regs
}

func TestFan_HandleSetup(t *testing.T) {
	tests := []struct {
		name    string
		setup   device.SetupPacket
		handled bool
		wantErr error
		want    []byte
	}{
		{
			name:    "read duty",
			setup:   device.SetupPacket{RequestType: 0xC1, Request: 0x10, Index: 1, Length: 2},
			handled: true,
			want:    []byte{0x40, 0x01},
		},
		{
			name:    "read short name",
			setup:   device.SetupPacket{RequestType: 0xC1, Request: 0xf8, Index: 1, Length: 16},
			handled: true,
			want:    []byte("0123456789ABCDEF"),
		},
		{
			name:    "read unknown register",
			setup:   device.SetupPacket{RequestType: 0xC1, Request: 0x33, Index: 1, Length: 2},
			handled: true,
			wantErr: pkg.ErrNotSupported,
		},
		{
			name:    "write period",
			setup:   device.SetupPacket{RequestType: 0x41, Request: 0x11, Value: 1000, Index: 1},
			handled: true,
		},
		{
			name:    "write unknown register",
			setup:   device.SetupPacket{RequestType: 0x41, Request: 0x12, Value: 1, Index: 1},
			handled: true,
			wantErr: pkg.ErrNotSupported,
		},
		{
			name:  "other interface",
			setup: device.SetupPacket{RequestType: 0xC1, Request: 0x10, Index: 0, Length: 2},
		},
		{
			name:  "class request",
			setup: device.SetupPacket{RequestType: 0xA1, Request: 0x10, Index: 1, Length: 2},
		},
		{
			name:    "MS OS descriptor set",
			setup:   device.SetupPacket{RequestType: 0xC0, Request: MSOSVendorCode, Index: MSOSDescriptorIndex, Length: MSOSSetLength},
			handled: true,
			want:    DescriptorSet(1, regmap.CapabilityUUID),
		},
		{
			name:  "device request other index",
			setup: device.SetupPacket{RequestType: 0xC0, Request: MSOSVendorCode, Index: 4, Length: 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, iface, _ := newTestFan(t)
			got, handled, err := f.HandleSetup(iface, &tt.setup, nil)
			if handled != tt.handled {
				t.Fatalf("HandleSetup() handled = %v, want %v", handled, tt.handled)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleSetup() error = %v, want %v", err, tt.wantErr)
			}
			if tt.want != nil && !bytes.Equal(got, tt.want) {
				t.Errorf("HandleSetup() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestFan_WriteReachesRegisters(t *testing.T) {
	f, iface, regs := newTestFan(t)
	setup := device.SetupPacket{RequestType: 0x41, Request: 0x10, Value: 0x1234, Index: 1}
	if _, _, err := f.HandleSetup(iface, &setup, nil); err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	if got := regs.values[regmap.AddrDuty0]; got != 0x1234 {
		t.Errorf("duty = %#x, want 0x1234", got)
	}
	if f.Interface() != iface {
		t.Error("Interface() does not return the bound interface")
	}
	if err := f.Close(); err != nil || f.Interface() != nil {
		t.Errorf("Close() = %v, Interface() = %v", err, f.Interface())
	}
}
