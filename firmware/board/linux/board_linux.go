//go:build linux

package linux

import (
	"context"
	"errors"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/pkg"
)

// rolloverPoll is how often Run checks for an armed rollover. It is longer
// than any PWM period the register map can express.
const rolloverPoll = 5 * time.Millisecond

// Clock is a microsecond clock that starts at zero.
type Clock struct {
	start time.Time
}

// Micros implements pwm.Clock.
func (c *Clock) Micros() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

// Board is the set of Linux resources one controller drives.
type Board struct {
	cfg   Config
	pwm   *PWM
	led   *LED
	clock *Clock
}

// Open acquires the PWM chip and the LED line named by cfg. The tachometer
// lines are requested by Run.
func Open(cfg Config) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := OpenPWM(cfg.PWMChip, cfg.PWMChannels)
	if err != nil {
		return nil, err
	}
	b := &Board{cfg: cfg, pwm: p, clock: &Clock{start: time.Now()}}
	if cfg.LEDLine != "" {
		led, err := OpenLED(cfg.GPIOChip, cfg.LEDLine, cfg.LEDActiveLow)
		if err != nil {
			p.Close()
			return nil, err
		}
		b.led = led
	}
	return b, nil
}

// Timer returns the board's PWM timer.
func (b *Board) Timer() pwm.Timer { return b.pwm }

// Clock returns the board's microsecond clock.
func (b *Board) Clock() pwm.Clock { return b.clock }

// LED returns the status LED. Without an LED line it discards updates.
func (b *Board) LED() firmware.LED {
	if b.led == nil {
		return nopLED{}
	}
	return b.led
}

// Run delivers tachometer edges and rollovers to e until ctx is done.
func (b *Board) Run(ctx context.Context, e *pwm.Engine) error {
	var lines []*gpiocdev.Line
	defer func() {
		for _, l := range lines {
			l.Close()
		}
	}()
	for ch, name := range b.cfg.TachLines {
		if name == "" {
			continue
		}
		l, err := openTach(b.cfg.GPIOChip, name, func() { e.Edge(ch) })
		if err != nil {
			return err
		}
		lines = append(lines, l)
	}
	pkg.LogInfo(pkg.ComponentHAL, "board running",
		"pwm", b.cfg.PWMChip, "tach", len(lines), "led", b.led != nil)

	tick := time.NewTicker(rolloverPoll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if b.pwm.Armed() {
				e.Rollover()
			}
		}
	}
}

// Close turns the fans and the LED off and releases the board.
func (b *Board) Close() error {
	errs := []error{b.pwm.Close()}
	if b.led != nil {
		errs = append(errs, b.led.Close())
	}
	return errors.Join(errs...)
}

type nopLED struct{}

func (nopLED) Set(bool) {}
