package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

func startTestUnit(t *testing.T) *Unit {
	t.Helper()
	unit := NewUnit(loop.NewBus(), Config{Name: "fan0"})
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { unit.Stop() })
	return unit
}

func openUnit(t *testing.T, unit *Unit) *loop.Conn {
	t.Helper()
	conn, err := unit.Port().Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return conn
}

func readRegister(conn *loop.Conn, addr regmap.Address) (uint16, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var setup device.SetupPacket
	device.VendorReadSetup(&setup, firmware.FanInterface, uint8(addr), 2)
	buf := make([]byte, 2)
	if _, err := conn.Control(ctx, &setup, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func writeRegister(conn *loop.Conn, addr regmap.Address, value uint16) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var setup device.SetupPacket
	device.VendorWriteSetup(&setup, firmware.FanInterface, uint8(addr), value)
	_, err := conn.Control(ctx, &setup, nil)
	return err
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestUnit_Enumerates(t *testing.T) {
	unit := startTestUnit(t)
	conn := openUnit(t, unit)

	v, err := readRegister(conn, regmap.AddrVersion)
	if err != nil {
		t.Fatalf("read version error = %v", err)
	}
	if v != 0x0100 {
		t.Errorf("version = %#04x, want 0x0100", v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var setup device.SetupPacket
	buf := make([]byte, 255)
	device.GetDescriptorSetup(&setup, device.DescriptorTypeString, device.StringIndexSerialNumber, 255)
	n, err := conn.Control(ctx, &setup, buf)
	if err != nil {
		t.Fatalf("GET_DESCRIPTOR(serial) error = %v", err)
	}
	if serial, _ := device.ParseStringDescriptor(buf[:n]); serial != unit.ShortName() {
		t.Errorf("serial = %q, want %q", serial, unit.ShortName())
	}
	if err := unit.Start(context.Background()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("Start() again error = %v, want %v", err, pkg.ErrAlreadyRunning)
	}
}

func TestUnit_FanSpeed(t *testing.T) {
	unit := startTestUnit(t)
	conn := openUnit(t, unit)

	if err := writeRegister(conn, regmap.AddrDuty0, regmap.DefaultPeriod); err != nil {
		t.Fatalf("write duty error = %v", err)
	}
	ok := waitFor(t, 3*time.Second, func() bool {
		rpm, err := readRegister(conn, regmap.AddrTach0)
		return err == nil && rpm > DefaultMaxRPM/2 && rpm < DefaultMaxRPM*3/2
	})
	if !ok {
		rpm, err := readRegister(conn, regmap.AddrTach0)
		t.Errorf("tach0 = %d, %v, want about %d", rpm, err, DefaultMaxRPM)
	}
	if rpm, _ := readRegister(conn, regmap.AddrTach1); rpm != 0 {
		t.Errorf("tach1 = %d, want 0", rpm)
	}
	if got := unit.Board().Timer.Outputs(); !got.Enabled(0) || got.Enabled(1) {
		t.Errorf("timer outputs = %02b, want 01", got)
	}
}

func TestUnit_RebootDuringUse(t *testing.T) {
	unit := startTestUnit(t)
	conn := openUnit(t, unit)

	writes := []struct {
		addr  regmap.Address
		value uint16
	}{
		{regmap.AddrLEDControl, uint16(regmap.LEDOn)},
		{regmap.AddrPeriod, 800},
		{regmap.AddrConfigControl, regmap.ConfigCommit},
		{regmap.AddrDuty0, 200}, // not committed
		{regmap.AddrResetControl, uint16(regmap.ResetReboot)},
	}
	for _, w := range writes {
		if err := writeRegister(conn, w.addr, w.value); err != nil {
			t.Fatalf("write %s error = %v", w.addr, err)
		}
	}

	if !waitFor(t, 2*time.Second, func() bool { return unit.Boots() == 2 && unit.Port().Plugged() }) {
		t.Fatalf("unit did not reboot, boots = %d", unit.Boots())
	}

	if _, err := readRegister(conn, regmap.AddrVersion); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("read on stale connection error = %v, want %v", err, pkg.ErrNoDevice)
	}

	conn = openUnit(t, unit)
	tests := []struct {
		addr regmap.Address
		want uint16
	}{
		{regmap.AddrLEDControl, uint16(regmap.LEDOn)},
		{regmap.AddrPeriod, 800},
		{regmap.AddrDuty0, 0},
	}
	for _, tt := range tests {
		got, err := readRegister(conn, tt.addr)
		if err != nil || got != tt.want {
			t.Errorf("read %s after reboot = %d, %v, want %d", tt.addr, got, err, tt.want)
		}
	}
	if !waitFor(t, time.Second, unit.Board().LED.On) {
		t.Error("LED not on after reboot")
	}
}

func TestUnit_FactoryReset(t *testing.T) {
	unit := startTestUnit(t)
	conn := openUnit(t, unit)

	writeRegister(conn, regmap.AddrPeriod, 1000)
	writeRegister(conn, regmap.AddrConfigControl, regmap.ConfigCommit)
	if err := writeRegister(conn, regmap.AddrResetControl, uint16(regmap.ResetFactory)); err != nil {
		t.Fatalf("factory reset error = %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return unit.Boots() == 2 && unit.Port().Plugged() }) {
		t.Fatalf("unit did not reboot, boots = %d", unit.Boots())
	}
	conn = openUnit(t, unit)
	if got, err := readRegister(conn, regmap.AddrPeriod); err != nil || got != regmap.DefaultPeriod {
		t.Errorf("period after factory reset = %d, %v, want %d", got, err, regmap.DefaultPeriod)
	}
}

func TestUnit_Console(t *testing.T) {
	unit := startTestUnit(t)
	var out bytes.Buffer
	con := unit.Console(&out)
	if con == nil {
		t.Fatal("Console() = nil for running unit")
	}
	con.Write([]byte("W0x11,1280\nR17\n"))
	want := "W0x11,1280\r\nR17\r\n1280\r\n"
	if got := out.String(); got != want {
		t.Errorf("console output = %q, want %q", got, want)
	}

	unit.Stop()
	if unit.Console(&out) != nil || unit.Port().Plugged() {
		t.Error("stopped unit still has a console or is plugged")
	}
}

func TestUnit_StallIndicator(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the stall grace period")
	}
	unit := startTestUnit(t)
	conn := openUnit(t, unit)
	unit.Board().Stall(0, true)
	if err := writeRegister(conn, regmap.AddrDuty0, 320); err != nil {
		t.Fatalf("write duty error = %v", err)
	}

	led := unit.Board().LED
	if !waitFor(t, 4*time.Second, led.On) {
		t.Fatal("LED never lit for stalled fan")
	}

	unit.Board().Stall(0, false)
	ok := waitFor(t, 2*time.Second, func() bool {
		rpm, err := readRegister(conn, regmap.AddrTach0)
		return err == nil && rpm > 0 && !led.On()
	})
	if !ok {
		t.Error("LED still blinking after fan recovered")
	}
}
