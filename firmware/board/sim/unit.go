package sim

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Reset timing. A reboot takes effect ResetDelay after the request, so
// the request itself completes, and the unit stays off the bus for
// RebootTime. WatchdogTimeout is how long a unit that stopped servicing
// its watchdog runs before it resets.
const (
	ResetDelay      = 15 * time.Millisecond
	RebootTime      = 50 * time.Millisecond
	BootloaderTime  = 250 * time.Millisecond
	WatchdogTimeout = 2 * time.Second
)

// NVMSize is the size of the default in-memory settings storage.
const NVMSize = 1024

// Config describes a simulated unit.
type Config struct {
	// Name names the unit's bus port.
	Name string

	// UID holds the per-unit bytes the short name derives from. Empty
	// derives them from Name.
	UID []byte

	// MaxRPM is each fan's speed at full duty. Zero entries use
	// DefaultMaxRPM.
	MaxRPM [pwm.NumChannels]float64

	// NVM is the settings storage. Nil uses fresh memory, which persists
	// across reboots of the unit.
	NVM store.NVM
}

// Unit is a simulated fan controller attached to a loop.Bus.
type Unit struct {
	cfg   Config
	port  *loop.Port
	board *Board
	nvm   store.NVM

	mu      sync.Mutex
	ctx     context.Context // lifetime of the unit, set by Start
	running bool
	boots   int
	ctrl    *firmware.Controller
	stack   *device.Stack
	cancel  context.CancelFunc // stops the current boot
	wg      sync.WaitGroup     // goroutines of the current boot
}

// NewUnit attaches a new unit to bus. It stays unplugged until Start.
func NewUnit(bus *loop.Bus, cfg Config) *Unit {
	nvm := cfg.NVM
	if nvm == nil {
		nvm = store.NewMemory(NVMSize)
	}
	if len(cfg.UID) == 0 {
		cfg.UID = []byte(cfg.Name)
	}
	return &Unit{
		cfg:   cfg,
		port:  bus.Attach(cfg.Name),
		board: NewBoard(cfg.MaxRPM),
		nvm:   nvm,
	}
}

// Port returns the bus port the unit is attached to.
func (u *Unit) Port() *loop.Port { return u.port }

// Board returns the unit's simulated hardware.
func (u *Unit) Board() *Board { return u.board }

// ShortName returns the unit's short name, which is also its USB serial
// number.
func (u *Unit) ShortName() string {
	name := firmware.ShortName(u.cfg.UID)
	return string(name[:])
}

// Controller returns the firmware of the current boot, or nil if the unit
// is off.
func (u *Unit) Controller() *firmware.Controller {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ctrl
}

// Boots returns how many times the firmware has started.
func (u *Unit) Boots() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.boots
}

// Start powers the unit on. It returns pkg.ErrAlreadyRunning if it is on.
func (u *Unit) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return pkg.ErrAlreadyRunning
	}
	u.ctx = ctx
	if err := u.boot(); err != nil {
		return err
	}
	u.running = true
	return nil
}

// Stop powers the unit off.
func (u *Unit) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return nil
	}
	u.running = false
	return u.halt()
}

// Reset implements firmware.System. The reset happens after Reset
// returns.
func (u *Unit) Reset(mode regmap.ResetMode) error {
	delay, off := ResetDelay, RebootTime
	switch mode {
	case regmap.ResetBootloader:
		off = BootloaderTime
	case regmap.ResetWatchdogTest:
		delay = WatchdogTimeout
	}
	pkg.LogInfo(pkg.ComponentFirmware, "unit resetting",
		"unit", u.cfg.Name, "mode", mode, "delay", delay)
	time.AfterFunc(delay, func() { u.reboot(off) })
	return nil
}

// Console returns a debug console on the current firmware, or nil if the
// unit is off.
func (u *Unit) Console(w io.Writer) *firmware.Console {
	ctrl := u.Controller()
	if ctrl == nil {
		return nil
	}
	return firmware.NewConsole(ctrl, w)
}

func (u *Unit) reboot(off time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return
	}
	if err := u.halt(); err != nil {
		pkg.LogWarn(pkg.ComponentFirmware, "unit halt failed", "unit", u.cfg.Name, "error", err)
	}

	select {
	case <-u.ctx.Done():
		u.running = false
		return
	case <-time.After(off):
	}

	if err := u.boot(); err != nil {
		u.running = false
		pkg.LogError(pkg.ComponentFirmware, "unit boot failed", "unit", u.cfg.Name, "error", err)
	}
}

// boot starts the firmware and plugs the unit in. u.mu is held.
func (u *Unit) boot() error {
	eng := pwm.NewEngine(u.board.Timer, u.board.Clock, nil)
	ctrl := firmware.New(eng, store.New(u.nvm), u, u.cfg.UID)
	ctrl.Begin()

	ctx, cancel := context.WithCancel(u.ctx)
	dev, err := firmware.NewUSBDevice(ctx, ctrl)
	if err != nil {
		cancel()
		return fmt.Errorf("unit %s: %w", u.cfg.Name, err)
	}
	stack := device.NewStack(dev, u.port)

	u.wg.Add(2)
	go func() {
		defer u.wg.Done()
		u.board.Run(ctx, eng)
	}()
	go func() {
		defer u.wg.Done()
		firmware.Run(ctx, ctrl, firmware.NewIndicator(u.board.LED))
	}()

	if err := stack.Start(ctx); err != nil {
		cancel()
		u.wg.Wait()
		return fmt.Errorf("unit %s: %w", u.cfg.Name, err)
	}

	u.ctrl, u.stack, u.cancel = ctrl, stack, cancel
	u.boots++
	pkg.LogInfo(pkg.ComponentFirmware, "unit booted",
		"unit", u.cfg.Name, "serial", ctrl.ShortName(), "boot", u.boots)
	return nil
}

// halt unplugs the unit and stops the firmware. u.mu is held.
func (u *Unit) halt() error {
	err := u.stack.Stop()
	u.cancel()
	u.wg.Wait()
	u.board.Timer.SetOutputs(0)
	u.ctrl, u.stack, u.cancel = nil, nil, nil
	return err
}
