package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/usbfan/device/hal"
	"github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/pkg"
)

func startTestStack(t *testing.T, driver *testDriver) (*Stack, *loop.Port) {
	t.Helper()
	dev := buildTestDevice(t, driver)
	port := loop.NewBus().Attach("test")
	stack := NewStack(dev, port)
	if err := stack.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { stack.Stop() })
	return stack, port
}

func control(t *testing.T, conn *loop.Conn, setup SetupPacket, data []byte) (int, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return conn.Control(ctx, &setup, data)
}

func TestStack_StartTwice(t *testing.T) {
	stack, _ := startTestStack(t, &testDriver{})
	if err := stack.Start(context.Background()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("Start() error = %v, want %v", err, pkg.ErrAlreadyRunning)
	}
	if !stack.IsRunning() || !stack.IsConnected() {
		t.Error("stack not running and connected")
	}
}

func TestStack_Enumeration(t *testing.T) {
	stack, port := startTestStack(t, &testDriver{})
	conn, err := port.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var setup SetupPacket
	buf := make([]byte, 64)
	GetDescriptorSetup(&setup, DescriptorTypeDevice, 0, 64)
	n, err := control(t, conn, setup, buf)
	if err != nil || n != DeviceDescriptorSize {
		t.Fatalf("GET_DESCRIPTOR(device) = %d, %v", n, err)
	}
	var desc DeviceDescriptor
	if err := ParseDeviceDescriptor(buf[:n], &desc); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if desc.VendorID != 0x1209 {
		t.Errorf("VendorID = 0x%04x, want 0x1209", desc.VendorID)
	}

	SetAddressSetup(&setup, 3)
	if _, err := control(t, conn, setup, nil); err != nil {
		t.Fatalf("SET_ADDRESS error = %v", err)
	}
	if port.Address() != 3 {
		t.Errorf("port address = %d, want 3", port.Address())
	}
	SetConfigurationSetup(&setup, 1)
	if _, err := control(t, conn, setup, nil); err != nil {
		t.Fatalf("SET_CONFIGURATION error = %v", err)
	}
	if !stack.Device().IsConfigured() {
		t.Errorf("device state = %v, want Configured", stack.Device().State())
	}

	GetDescriptorSetup(&setup, DescriptorTypeString, StringIndexSerialNumber, 255)
	sbuf := make([]byte, 255)
	n, err = control(t, conn, setup, sbuf)
	if err != nil {
		t.Fatalf("GET_DESCRIPTOR(serial) error = %v", err)
	}
	if s, _ := ParseStringDescriptor(sbuf[:n]); s != "0123456789ABCDEV" {
		t.Errorf("serial = %q", s)
	}
}

func TestStack_VendorRequests(t *testing.T) {
	driver := &testDriver{device: true}
	_, port := startTestStack(t, driver)
	conn, err := port.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var setup SetupPacket
	buf := make([]byte, 2)
	VendorReadSetup(&setup, 0, 0x10, 2)
	if n, err := control(t, conn, setup, buf); err != nil || n != 2 || buf[0] != 0x34 || buf[1] != 0x12 {
		t.Errorf("vendor read = % x (%d), %v; want 34 12", buf, n, err)
	}

	VendorWriteSetup(&setup, 0, 0x10, 640)
	if _, err := control(t, conn, setup, nil); err != nil {
		t.Errorf("vendor write error = %v", err)
	}
	if got := driver.written(); len(got) != 1 || got[0] != 640 {
		t.Errorf("driver writes = %v, want [640]", got)
	}

	tests := []struct {
		name  string
		setup SetupPacket
	}{
		{"driver error", SetupPacket{RequestType: RequestTypeVendorInterfaceOut, Request: 0x11}},
		{"unhandled request", SetupPacket{RequestType: RequestTypeVendorInterfaceIn, Request: 0x99, Length: 2}},
		{"wrong interface", SetupPacket{RequestType: RequestTypeVendorInterfaceIn, Request: 0x10, Index: 4, Length: 2}},
		{"class request", SetupPacket{RequestType: hal.RequestDirectionDeviceToHost | hal.RequestTypeClass | hal.RequestRecipientInterface, Request: 0x10, Length: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := control(t, conn, tt.setup, make([]byte, 2)); !errors.Is(err, pkg.ErrStall) {
				t.Errorf("Control() error = %v, want %v", err, pkg.ErrStall)
			}
		})
	}

	dbuf := make([]byte, 16)
	setup = SetupPacket{RequestType: RequestTypeVendorDeviceIn, Request: 0x02, Index: 0x07, Length: 16}
	n, err := control(t, conn, setup, dbuf)
	if err != nil || string(dbuf[:n]) != "device" {
		t.Errorf("device vendor read = %q, %v; want \"device\"", dbuf[:n], err)
	}
}

func TestStack_StopDetaches(t *testing.T) {
	stack, port := startTestStack(t, &testDriver{})
	conn, err := port.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := stack.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stack.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	var setup SetupPacket
	GetDescriptorSetup(&setup, DescriptorTypeDevice, 0, 18)
	if _, err := control(t, conn, setup, make([]byte, 18)); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Control() after Stop error = %v, want %v", err, pkg.ErrNoDevice)
	}

	// restart: the old connection stays dead, a new one works
	if err := stack.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	if _, err := control(t, conn, setup, make([]byte, 18)); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("stale Control() error = %v, want %v", err, pkg.ErrNoDevice)
	}
	fresh, err := port.Open()
	if err != nil {
		t.Fatalf("Open() after restart error = %v", err)
	}
	if n, err := control(t, fresh, setup, make([]byte, 18)); err != nil || n != DeviceDescriptorSize {
		t.Errorf("Control() after restart = %d, %v", n, err)
	}
}
