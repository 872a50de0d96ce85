package pwm

import (
	"fmt"
	"sync"

	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// NumChannels is the number of PWM/capture channel pairs.
const NumChannels = regmap.NumChannels

// Timer is the PWM timer hardware shared by both channels.
type Timer interface {
	// SetTop sets the last count of each period, one less than the period.
	SetTop(top uint16)

	// SetCompare sets the count at which channel ch's output falls. The
	// timer latches the value at the next rollover.
	SetCompare(ch int, v uint16)

	// SetOutputs replaces the set of enabled outputs immediately.
	SetOutputs(o Outputs)

	// ResetCounter restarts the current period.
	ResetCounter()

	// EnableRollover arms or disarms the period rollover interrupt. When
	// armed, the board calls Engine.Rollover at the next period boundary.
	// It must never do so from inside EnableRollover.
	EnableRollover(on bool)
}

// Clock is a monotonic microsecond counter. It must not wrap while the
// engine runs; 64 bits last half a million years.
type Clock interface {
	Micros() uint64
}

// Outputs is a bit set of enabled PWM outputs, bit n for channel n.
type Outputs uint8

// Enabled reports whether channel ch's output is enabled.
func (o Outputs) Enabled(ch int) bool { return o&(1<<ch) != 0 }

// With returns o with channel ch's output set to on.
func (o Outputs) With(ch int, on bool) Outputs {
	if on {
		return o | 1<<ch
	}
	return o &^ (1 << ch)
}

// Engine owns the PWM channels and capture rings of one controller.
type Engine struct {
	timer Timer
	clock Clock
	mask  sync.Locker

	period  uint16
	duty    [NumChannels]uint16
	staged  Outputs // enable set the next rollover applies
	active  Outputs // enable set the timer is running with
	pending bool    // rollover armed to apply staged

	capture [NumChannels]capture
}

// NewEngine creates an engine. mask guards state shared with the edge and
// rollover handlers; a nil mask uses a private mutex.
func NewEngine(t Timer, c Clock, mask sync.Locker) *Engine {
	if mask == nil {
		mask = new(sync.Mutex)
	}
	return &Engine{timer: t, clock: c, mask: mask, period: regmap.DefaultPeriod}
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("%w: channel %d", pkg.ErrInvalidParameter, ch)
	}
	return nil
}

// Begin reprograms the timer from scratch with the given period and duties.
// Outputs take effect at once and any pending change is dropped.
func (e *Engine) Begin(period uint16, duty [NumChannels]uint16) {
	e.mask.Lock()
	defer e.mask.Unlock()

	e.timer.EnableRollover(false)
	e.pending = false
	e.period = period
	e.timer.SetTop(period - 1)

	var out Outputs
	for ch, d := range duty {
		e.duty[ch] = d
		out = out.With(ch, d != 0)
		if d != 0 {
			e.timer.SetCompare(ch, d-1)
		}
	}
	e.staged = out
	e.active = out
	e.timer.SetOutputs(out)
	e.timer.ResetCounter()

	pkg.LogDebug(pkg.ComponentPWM, "timer programmed",
		"period", period, "duty0", duty[0], "duty1", duty[1])
}

// SetDuty sets channel ch's high time in clock cycles; 0 turns the output
// off. An enable change is staged for the next rollover.
func (e *Engine) SetDuty(ch int, v uint16) error {
	if err := checkChannel(ch); err != nil {
		return err
	}

	e.mask.Lock()
	defer e.mask.Unlock()

	e.duty[ch] = v
	if v != 0 {
		e.timer.SetCompare(ch, v-1)
	}
	next := e.staged.With(ch, v != 0)
	if next == e.staged {
		return nil
	}
	if v != 0 {
		e.capture[ch].prime(e.clock.Micros())
	}
	e.staged = next
	e.pending = true
	e.timer.EnableRollover(true)
	return nil
}

// Duty returns channel ch's duty, or 0 if its staged output is disabled.
func (e *Engine) Duty(ch int) uint16 {
	if checkChannel(ch) != nil {
		return 0
	}
	e.mask.Lock()
	defer e.mask.Unlock()
	if !e.staged.Enabled(ch) {
		return 0
	}
	return e.duty[ch]
}

// SetPeriod sets the shared period in clock cycles and restarts the
// current period. The value 0 selects 65536 cycles.
func (e *Engine) SetPeriod(v uint16) {
	e.mask.Lock()
	defer e.mask.Unlock()
	e.period = v
	e.timer.SetTop(v - 1)
	e.timer.ResetCounter()
}

// Period returns the shared period in clock cycles.
func (e *Engine) Period() uint16 {
	e.mask.Lock()
	defer e.mask.Unlock()
	return e.period
}

// Rollover is the period rollover handler. It applies the staged enable set
// and disarms itself.
func (e *Engine) Rollover() {
	e.mask.Lock()
	defer e.mask.Unlock()
	if !e.pending {
		return
	}
	e.timer.SetOutputs(e.staged)
	e.active = e.staged
	e.pending = false
	e.timer.EnableRollover(false)
}

// Pending reports whether a staged enable change awaits a rollover.
func (e *Engine) Pending() bool {
	e.mask.Lock()
	defer e.mask.Unlock()
	return e.pending
}

// Active returns the enable set the timer is currently running with.
func (e *Engine) Active() Outputs {
	e.mask.Lock()
	defer e.mask.Unlock()
	return e.active
}

// Edge is the tachometer edge handler for channel ch.
func (e *Engine) Edge(ch int) {
	if checkChannel(ch) != nil {
		return
	}
	e.mask.Lock()
	e.capture[ch].record(e.clock.Micros())
	e.mask.Unlock()
}

// Snapshot returns a consistent copy of channel ch's capture state.
func (e *Engine) Snapshot(ch int) Snapshot {
	if checkChannel(ch) != nil {
		return Snapshot{}
	}
	e.mask.Lock()
	defer e.mask.Unlock()
	return e.capture[ch].snapshot()
}

// Speed returns channel ch's shaft speed in RPM, 0 if stalled.
func (e *Engine) Speed(ch int) uint16 {
	s := e.Snapshot(ch)
	return s.RPM(e.clock.Micros())
}

// Stalled reports whether any channel with an enabled output has seen no
// edge within StallTimeout. Disabled channels never count.
func (e *Engine) Stalled() bool {
	e.mask.Lock()
	defer e.mask.Unlock()
	now := e.clock.Micros()
	for ch := range e.capture {
		if e.staged.Enabled(ch) && e.capture[ch].snapshot().Stalled(now, StallTimeout) {
			return true
		}
	}
	return false
}
