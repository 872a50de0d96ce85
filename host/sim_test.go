package host_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	devloop "github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/firmware/board/sim"
	"github.com/ardnew/usbfan/host"
	"github.com/ardnew/usbfan/host/hal/loop"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

func startSim(t *testing.T) (*sim.Unit, *loop.Transport) {
	t.Helper()
	bus := devloop.NewBus()
	unit := sim.NewUnit(bus, sim.Config{Name: "fan0"})
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { unit.Stop() })
	return unit, loop.New(bus)
}

func openSim(t *testing.T, unit *sim.Unit, tr *loop.Transport) *host.Session {
	t.Helper()
	s, err := host.Open(tr, host.DefaultCapability, unit.ShortName())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSimulatedFan(t *testing.T) {
	unit, tr := startSim(t)
	fan := host.NewFan(openSim(t, unit, tr))

	name, err := fan.ShortName()
	if err != nil || name != unit.ShortName() {
		t.Errorf("ShortName() = %q, %v, want %q", name, err, unit.ShortName())
	}
	if err := fan.SetSpeed(0, 100); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	var rpm uint16
	for time.Now().Before(deadline) {
		if rpm, err = fan.RPM(0); err == nil && rpm > sim.DefaultMaxRPM/2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if rpm < sim.DefaultMaxRPM/2 || rpm > sim.DefaultMaxRPM*3/2 {
		t.Errorf("RPM(0) = %d, %v, want about %d", rpm, err, sim.DefaultMaxRPM)
	}
}

func TestSimulatedRebootDuringUse(t *testing.T) {
	unit, tr := startSim(t)
	s := openSim(t, unit, tr)

	var (
		mu     sync.Mutex
		events []host.EventKind
	)
	s.SetOnEvent(func(e host.Event) {
		mu.Lock()
		events = append(events, e.Kind)
		mu.Unlock()
	})

	fan := host.NewFan(s)
	if err := fan.SetLED(regmap.LEDOn); err != nil {
		t.Fatalf("SetLED() error = %v", err)
	}
	if err := fan.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := fan.Reset(regmap.ResetReboot); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	// Poll through the reboot. Every call either succeeds or reports the
	// device absent; nothing else may leak out.
	deadline := time.Now().Add(3 * time.Second)
	var absent int
	for time.Now().Before(deadline) {
		_, err := fan.LED()
		if errors.Is(err, pkg.ErrDeviceAbsent) {
			absent++
		} else if err != nil {
			t.Fatalf("LED() error = %v", err)
		}
		if unit.Boots() == 2 && err == nil && s.State() == host.Connected {
			mu.Lock()
			n := len(events)
			mu.Unlock()
			if n >= 2 {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []host.EventKind{host.EventUnplugged, host.EventReplugged}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if absent == 0 {
		t.Errorf("no call observed the device absent")
	}
	if m, err := fan.LED(); err != nil || m != regmap.LEDOn {
		t.Errorf("LED() after reboot = %v, %v, want %v", m, err, regmap.LEDOn)
	}
}
