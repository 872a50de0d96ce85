package loop

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	devloop "github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/firmware/board/sim"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

func startUnits(t *testing.T, names ...string) (*devloop.Bus, []*sim.Unit) {
	t.Helper()
	bus := devloop.NewBus()
	var units []*sim.Unit
	for _, name := range names {
		u := sim.NewUnit(bus, sim.Config{Name: name})
		if err := u.Start(context.Background()); err != nil {
			t.Fatalf("Start(%s) error = %v", name, err)
		}
		t.Cleanup(func() { u.Stop() })
		units = append(units, u)
	}
	return bus, units
}

func collect(tr *Transport, capability uuid.UUID) []hal.Candidate {
	var cs []hal.Candidate
	for c := range tr.Enumerate(capability) {
		cs = append(cs, c)
	}
	return cs
}

func TestEnumerate(t *testing.T) {
	bus, units := startUnits(t, "fan0", "fan1")
	bus.Attach("empty")
	tr := New(bus)

	got := collect(tr, regmap.CapabilityUUID)
	if len(got) != len(units) {
		t.Fatalf("Enumerate() yielded %d candidates, want %d", len(got), len(units))
	}
	for i, c := range got {
		u := units[i]
		if c.Path != u.Port().Name() {
			t.Errorf("Candidate[%d].Path = %q, want %q", i, c.Path, u.Port().Name())
		}
		if c.Serial != u.ShortName() {
			t.Errorf("Candidate[%d].Serial = %q, want %q", i, c.Serial, u.ShortName())
		}
		if c.Version != regmap.CurrentVersion {
			t.Errorf("Candidate[%d].Version = %v, want %v", i, c.Version, regmap.CurrentVersion)
		}
		if c.Interface != firmware.FanInterface {
			t.Errorf("Candidate[%d].Interface = %d, want %d", i, c.Interface, firmware.FanInterface)
		}
		if c.VendorID != firmware.VendorID || c.ProductID != firmware.ProductID {
			t.Errorf("Candidate[%d] ID = %04x:%04x", i, c.VendorID, c.ProductID)
		}
	}

	other := uuid.MustParse("00000000-1111-2222-3333-444444444444")
	if got := collect(tr, other); len(got) != 0 {
		t.Errorf("Enumerate(other) = %v, want none", got)
	}
}

func TestEnumerateStopsEarly(t *testing.T) {
	bus, _ := startUnits(t, "fan0", "fan1")
	tr := New(bus)
	n := 0
	for range tr.Enumerate(regmap.CapabilityUUID) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("Enumerate() yielded %d before break, want 1", n)
	}
}

func TestHandleControl(t *testing.T) {
	bus, _ := startUnits(t, "fan0")
	tr := New(bus)
	h, err := tr.Open(hal.Candidate{Path: "fan0"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if _, err := h.Control(0x41, uint8(regmap.AddrLEDControl), uint16(regmap.LEDOn), firmware.FanInterface, nil); err != nil {
		t.Fatalf("Control(write) error = %v", err)
	}
	buf := make([]byte, 2)
	n, err := h.Control(0xC1, uint8(regmap.AddrLEDControl), 0, firmware.FanInterface, buf)
	if err != nil || n != 2 {
		t.Fatalf("Control(read) = %d, %v", n, err)
	}
	if got := regmap.LEDMode(binary.LittleEndian.Uint16(buf)); got != regmap.LEDOn {
		t.Errorf("LED = %v, want %v", got, regmap.LEDOn)
	}

	// Writing a read-only register stalls, which is not removal.
	_, err = h.Control(0x41, uint8(regmap.AddrTach0), 1, firmware.FanInterface, nil)
	if !errors.Is(err, pkg.ErrStall) || pkg.IsRemoval(err) {
		t.Errorf("Control(write tach) error = %v, want %v", err, pkg.ErrStall)
	}
}

func TestHandleRemoved(t *testing.T) {
	bus, units := startUnits(t, "fan0")
	tr := New(bus)
	h, err := tr.Open(hal.Candidate{Path: "fan0"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	units[0].Stop()
	buf := make([]byte, 2)
	_, err = h.Control(0xC1, uint8(regmap.AddrVersion), 0, firmware.FanInterface, buf)
	if !pkg.IsRemoval(err) {
		t.Errorf("Control() after unplug error = %v, want %v", err, pkg.ErrDeviceRemoved)
	}

	if _, err := tr.Open(hal.Candidate{Path: "fan0"}); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Open() on unplugged port error = %v, want %v", err, pkg.ErrNoDevice)
	}
	if _, err := tr.Open(hal.Candidate{Path: "nowhere"}); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Open(nowhere) error = %v, want %v", err, pkg.ErrNoDevice)
	}
}

func TestHandleClosed(t *testing.T) {
	bus, _ := startUnits(t, "fan0")
	h, err := New(bus).Open(hal.Candidate{Path: "fan0"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h.Close()
	if _, err := h.Control(0xC1, 0, 0, 0, make([]byte, 2)); !errors.Is(err, pkg.ErrClosed) {
		t.Errorf("Control() after Close error = %v, want %v", err, pkg.ErrClosed)
	}
}

func TestSetTimeout(t *testing.T) {
	bus := devloop.NewBus()
	port := bus.Attach("idle")
	if err := port.Start(); err != nil { // plugged, but no control loop answers
		t.Fatalf("Start() error = %v", err)
	}
	tr := New(bus)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			tr.SetTimeout(time.Duration(i+1) * time.Millisecond)
		}
	}()
	for i := 0; i < 100; i++ {
		h, err := tr.Open(hal.Candidate{Path: "idle"})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		h.Close()
	}
	<-done

	tr.SetTimeout(20 * time.Millisecond)
	h, err := tr.Open(hal.Candidate{Path: "idle"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()
	start := time.Now()
	if _, err := h.Control(0xC1, 0, 0, 0, make([]byte, 2)); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("Control() error = %v, want %v", err, pkg.ErrTimeout)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Control() took %v with a 20ms timeout", elapsed)
	}
}
