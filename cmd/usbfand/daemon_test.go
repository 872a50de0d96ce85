package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	devhal "github.com/ardnew/usbfan/device/hal"
	devfifo "github.com/ardnew/usbfan/device/hal/fifo"
	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/firmware/board/sim"
	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/host"
	"github.com/ardnew/usbfan/host/hal/fifo"
	"github.com/ardnew/usbfan/pkg/config"
	"github.com/ardnew/usbfan/regmap"
)

// simBoard adapts a simulated board to the daemon.
type simBoard struct {
	b *sim.Board
}

func (s simBoard) Timer() pwm.Timer  { return s.b.Timer }
func (s simBoard) Clock() pwm.Clock  { return s.b.Clock }
func (s simBoard) LED() firmware.LED { return s.b.LED }

func (s simBoard) Run(ctx context.Context, e *pwm.Engine) error {
	s.b.Run(ctx, e)
	return nil
}

// lineConsole is a console connection whose reads time out like a serial
// port's.
type lineConsole struct {
	in chan []byte

	mu  sync.Mutex
	out bytes.Buffer
}

func newLineConsole() *lineConsole {
	return &lineConsole{in: make(chan []byte, 16)}
}

func (c *lineConsole) Read(p []byte) (int, error) {
	select {
	case b := <-c.in:
		return copy(p, b), nil
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (c *lineConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *lineConsole) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startDaemon(t *testing.T, nvm store.NVM, console *lineConsole, usb devhal.DeviceHAL) (*daemon, func() error) {
	t.Helper()
	var rw io.ReadWriter
	if console != nil {
		rw = console
	}
	d := newDaemon(simBoard{sim.NewBoard([pwm.NumChannels]float64{})}, nvm, []byte{1, 2, 3, 4}, rw)
	d.usb = usb
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	waitFor(t, "first boot", func() bool { return d.controller() != nil })
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatal("daemon did not stop")
			return nil
		}
	}
	return d, stop
}

func TestDaemonConsoleCommitAndReboot(t *testing.T) {
	nvm := store.NewMemory(nvmSize)
	console := newLineConsole()
	d, stop := startDaemon(t, nvm, console, nil)

	console.in <- []byte("W16,100\n")
	console.in <- []byte("W242,1\n")
	console.in <- []byte("W240,2\n")

	waitFor(t, "reboot", func() bool { return d.boots.Load() == 2 && d.controller() != nil })
	if got := d.controller().Settings().Duty[0]; got != 100 {
		t.Errorf("duty0 after reboot = %d, want 100", got)
	}
	rec, ok := store.New(nvm).Load()
	if !ok || rec.Duty[0] != 100 {
		t.Errorf("stored record = %+v, %v, want duty0 100", rec, ok)
	}

	console.in <- []byte("R16\n")
	waitFor(t, "read reply", func() bool { return strings.Contains(console.output(), "R16\r\n100\r\n") })

	if err := stop(); err != nil {
		t.Errorf("run() error = %v", err)
	}
	if d.controller() != nil {
		t.Error("controller() after stop is not nil")
	}
}

func TestDaemonResetDuringRestartDropped(t *testing.T) {
	d, stop := startDaemon(t, store.NewMemory(nvmSize), nil, nil)
	defer stop()

	d.Reset(regmap.ResetReboot)
	for len(d.resets) != 0 {
		time.Sleep(time.Millisecond)
	}
	// the first reset is being carried out; this one arrives too late
	d.Reset(regmap.ResetReboot)

	waitFor(t, "reboot", func() bool { return d.boots.Load() == 2 && d.controller() != nil })
	time.Sleep(resetDelay + rebootTime + 100*time.Millisecond)
	if n := d.boots.Load(); n != 2 {
		t.Errorf("boots = %d, want 2", n)
	}
}

func TestDaemonReloadDoesNotReboot(t *testing.T) {
	d, stop := startDaemon(t, store.NewMemory(nvmSize), nil, nil)
	ctrl := d.controller()
	if err := ctrl.WriteRegister(regmap.AddrResetControl, uint16(regmap.ResetReload)); err != nil {
		t.Fatalf("WriteRegister(reload) error = %v", err)
	}
	time.Sleep(resetDelay + rebootTime)
	if n := d.boots.Load(); n != 1 {
		t.Errorf("boots = %d, want 1", n)
	}
	if err := stop(); err != nil {
		t.Errorf("run() error = %v", err)
	}
}

func TestDaemonFactoryReset(t *testing.T) {
	nvm := store.NewMemory(nvmSize)
	rec := store.Default()
	rec.Period = 800
	if err := store.New(nvm).Commit(rec); err != nil {
		t.Fatal(err)
	}

	d, stop := startDaemon(t, nvm, nil, nil)
	defer stop()
	if got := d.controller().Settings().Period; got != 800 {
		t.Fatalf("period = %d, want 800", got)
	}
	if err := d.controller().WriteRegister(regmap.AddrResetControl, uint16(regmap.ResetFactory)); err != nil {
		t.Fatalf("WriteRegister(factory) error = %v", err)
	}
	waitFor(t, "reboot", func() bool { return d.boots.Load() == 2 && d.controller() != nil })
	if got := d.controller().Settings().Period; got != regmap.DefaultPeriod {
		t.Errorf("period after factory reset = %d, want %d", got, regmap.DefaultPeriod)
	}
}

func TestBoardConfig(t *testing.T) {
	channels := [2]int{3, 2}
	c := boardConfig(config.Daemon{
		TachLines:    [2]string{"", "GPIO6"},
		LEDActiveLow: true,
		PWMChannels:  &channels,
	})
	if c.GPIOChip != "gpiochip0" || c.PWMChip != "/sys/class/pwm/pwmchip0" {
		t.Errorf("boardConfig() = %+v, want default chips", c)
	}
	if c.TachLines != [pwm.NumChannels]string{"GPIO23", "GPIO6"} {
		t.Errorf("TachLines = %v, want [GPIO23 GPIO6]", c.TachLines)
	}
	if c.PWMChannels != [pwm.NumChannels]int{3, 2} || !c.LEDActiveLow {
		t.Errorf("boardConfig() = %+v", c)
	}
}

func TestUnitID(t *testing.T) {
	id, err := unitID(config.Daemon{UniqueID: "0a0b"})
	if err != nil || !bytes.Equal(id, []byte{0x0a, 0x0b}) {
		t.Errorf("unitID() = %v, %v, want [10 11]", id, err)
	}
}

func TestDaemonFIFOAttachment(t *testing.T) {
	bus := t.TempDir()
	d, stop := startDaemon(t, store.NewMemory(nvmSize), nil, devfifo.New(bus))
	name := firmware.ShortName([]byte{1, 2, 3, 4})

	tr := fifo.New(bus)
	var s *host.Session
	waitFor(t, "fifo device", func() bool {
		var err error
		s, err = host.Open(tr, host.DefaultCapability, string(name[:]))
		return err == nil
	})
	defer s.Close()
	fan := host.NewFan(s)

	if err := fan.SetSpeed(0, 50); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if got := d.controller().Settings().Duty[0]; got != regmap.DefaultPeriod/2 {
		t.Errorf("duty0 = %d, want %d", got, regmap.DefaultPeriod/2)
	}

	// A reboot detaches and reattaches; the session follows the device.
	if err := fan.Reset(regmap.ResetReboot); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	waitFor(t, "reboot", func() bool { return d.boots.Load() == 2 && d.controller() != nil })
	waitFor(t, "reacquire", func() bool {
		v, err := fan.Version()
		return err == nil && v == regmap.CurrentVersion
	})

	if err := stop(); err != nil {
		t.Errorf("run() error = %v", err)
	}
	entries, _ := os.ReadDir(bus)
	if len(entries) != 0 {
		t.Errorf("bus after stop has %d entries, want 0", len(entries))
	}
}
