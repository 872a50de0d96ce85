package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/usbfan/device"
	devhal "github.com/ardnew/usbfan/device/hal"
	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Restart timing. A reset is carried out resetDelay after it is requested
// so the request can still be acknowledged, and the firmware stays down
// for rebootTime. A watchdog self-test stops the firmware and restarts it
// once watchdogTimeout has expired.
const (
	resetDelay      = 15 * time.Millisecond
	rebootTime      = 50 * time.Millisecond
	watchdogTimeout = 2 * time.Second
)

// board is the hardware the firmware drives.
type board interface {
	Timer() pwm.Timer
	Clock() pwm.Clock
	LED() firmware.LED
	Run(ctx context.Context, e *pwm.Engine) error
}

// daemon runs the firmware on a board, restarting it in-process whenever
// a reset is requested.
type daemon struct {
	board   board
	nvm     store.NVM
	uid     []byte
	console io.ReadWriter   // nil without a console port
	usb     devhal.DeviceHAL // nil without a USB attachment

	resets chan regmap.ResetMode
	boots  atomic.Int32

	mu   sync.Mutex
	ctrl *firmware.Controller
}

func newDaemon(b board, nvm store.NVM, uid []byte, console io.ReadWriter) *daemon {
	return &daemon{
		board:   b,
		nvm:     nvm,
		uid:     uid,
		console: console,
		resets:  make(chan regmap.ResetMode, 1),
	}
}

// Reset implements firmware.System. The reset happens after Reset returns;
// requests made before then, or while the firmware is down, are dropped.
func (d *daemon) Reset(mode regmap.ResetMode) error {
	select {
	case d.resets <- mode:
	default:
	}
	return nil
}

// controller returns the running firmware, or nil between boots.
func (d *daemon) controller() *firmware.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl
}

func (d *daemon) setController(c *firmware.Controller) {
	d.mu.Lock()
	d.ctrl = c
	d.mu.Unlock()
}

// run boots the firmware and keeps rebooting it until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	for {
		mode, err := d.boot(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		off := rebootTime
		switch mode {
		case regmap.ResetBootloader:
			pkg.LogWarn(pkg.ComponentFirmware, "no bootloader, rebooting instead")
		case regmap.ResetWatchdogTest:
			off = watchdogTimeout
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(off):
		}
	}
}

// boot runs one firmware lifetime. It returns the reset mode that ended
// it, or zero when ctx ended it.
func (d *daemon) boot(ctx context.Context) (regmap.ResetMode, error) {
	// requests left over from the previous lifetime
	for len(d.resets) > 0 {
		<-d.resets
	}
	eng := pwm.NewEngine(d.board.Timer(), d.board.Clock(), nil)
	ctrl := firmware.New(eng, store.New(d.nvm), d, d.uid)
	ctrl.Begin()
	d.setController(ctrl)
	defer d.setController(nil)

	n := d.boots.Add(1)
	set := ctrl.Settings()
	pkg.LogInfo(pkg.ComponentFirmware, "firmware started",
		"boot", n, "name", ctrl.ShortName(), "period", set.Period, "led", set.LEDMode)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	fail := func(err error) {
		select {
		case errc <- err:
		default:
		}
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := d.board.Run(ctx, eng); err != nil {
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		firmware.Run(ctx, ctrl, firmware.NewIndicator(d.board.LED()))
	}()
	if d.console != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := firmware.NewConsole(ctrl, d.console).Serve(ctx, d.console)
			if err != nil && !errors.Is(err, context.Canceled) {
				pkg.LogWarn(pkg.ComponentConsole, "console stopped", "error", err)
			}
		}()
	}

	var stack *device.Stack
	if d.usb != nil {
		dev, err := firmware.NewUSBDevice(ctx, ctrl)
		if err != nil {
			cancel()
			wg.Wait()
			return 0, err
		}
		stack = device.NewStack(dev, d.usb)
		if err := stack.Start(ctx); err != nil {
			cancel()
			wg.Wait()
			return 0, err
		}
	}

	var (
		mode regmap.ResetMode
		err  error
	)
	select {
	case <-ctx.Done():
	case mode = <-d.resets:
		pkg.LogInfo(pkg.ComponentFirmware, "firmware restarting", "mode", mode)
		time.Sleep(resetDelay)
	case err = <-errc:
	}
	if stack != nil {
		if serr := stack.Stop(); serr != nil {
			pkg.LogWarn(pkg.ComponentStack, "device stack stop failed", "error", serr)
		}
	}
	cancel()
	wg.Wait()
	return mode, err
}
