package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/pkg"
)

// DefaultMaxRPM is the speed of a simulated fan at full duty.
const DefaultMaxRPM = 3000

// rolloverInterval is how often the simulated timer checks for an armed
// rollover. Real periods are far shorter; only the ordering matters.
const rolloverInterval = time.Millisecond

// idlePoll is how often a stopped fan rechecks its drive.
const idlePoll = 10 * time.Millisecond

// Timer is a simulated PWM timer.
type Timer struct {
	mu      sync.Mutex
	top     uint16
	compare [pwm.NumChannels]uint16
	outputs pwm.Outputs
	armed   bool
	resets  int
}

// SetTop implements pwm.Timer.
func (t *Timer) SetTop(top uint16) {
	t.mu.Lock()
	t.top = top
	t.mu.Unlock()
}

// SetCompare implements pwm.Timer.
func (t *Timer) SetCompare(ch int, v uint16) {
	t.mu.Lock()
	t.compare[ch] = v
	t.mu.Unlock()
}

// SetOutputs implements pwm.Timer.
func (t *Timer) SetOutputs(o pwm.Outputs) {
	t.mu.Lock()
	t.outputs = o
	t.mu.Unlock()
}

// ResetCounter implements pwm.Timer.
func (t *Timer) ResetCounter() {
	t.mu.Lock()
	t.resets++
	t.mu.Unlock()
}

// EnableRollover implements pwm.Timer.
func (t *Timer) EnableRollover(on bool) {
	t.mu.Lock()
	t.armed = on
	t.mu.Unlock()
}

// Armed reports whether the rollover interrupt is armed.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Outputs returns the enabled outputs.
func (t *Timer) Outputs() pwm.Outputs {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputs
}

// Fraction returns the share of each period channel ch's output is high.
func (t *Timer) Fraction(ch int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.outputs.Enabled(ch) {
		return 0
	}
	f := (float64(t.compare[ch]) + 1) / (float64(t.top) + 1)
	return min(f, 1)
}

// Clock is a microsecond clock that starts at zero.
type Clock struct {
	start time.Time
}

// NewClock returns a clock started now.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Micros implements pwm.Clock.
func (c *Clock) Micros() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

// LED is a simulated status LED.
type LED struct {
	on      atomic.Bool
	changes atomic.Int64
}

// Set implements firmware.LED.
func (l *LED) Set(on bool) {
	l.on.Store(on)
	l.changes.Add(1)
	pkg.LogDebug(pkg.ComponentHAL, "status LED", "on", on)
}

// On reports whether the LED is lit.
func (l *LED) On() bool { return l.on.Load() }

// Changes returns how many times the LED has been set.
func (l *LED) Changes() int64 { return l.changes.Load() }

// Board is a simulated controller board with two fans.
type Board struct {
	Timer *Timer
	Clock *Clock
	LED   *LED

	maxRPM  [pwm.NumChannels]float64
	stalled [pwm.NumChannels]atomic.Bool
}

// NewBoard returns a board whose fans reach maxRPM at full duty. A zero
// entry uses DefaultMaxRPM.
func NewBoard(maxRPM [pwm.NumChannels]float64) *Board {
	b := &Board{Timer: &Timer{}, Clock: NewClock(), LED: &LED{}}
	for ch, rpm := range maxRPM {
		if rpm <= 0 {
			rpm = DefaultMaxRPM
		}
		b.maxRPM[ch] = rpm
	}
	return b
}

// Stall holds channel ch's rotor still, or releases it.
func (b *Board) Stall(ch int, stalled bool) {
	b.stalled[ch].Store(stalled)
}

// RPM returns the speed fan ch is currently driven at.
func (b *Board) RPM(ch int) float64 {
	if b.stalled[ch].Load() {
		return 0
	}
	return b.maxRPM[ch] * b.Timer.Fraction(ch)
}

// edgeInterval returns the time between tachometer edges of fan ch, or 0
// if it is not turning.
func (b *Board) edgeInterval(ch int) time.Duration {
	rpm := b.RPM(ch)
	if rpm < 1 {
		return 0
	}
	return time.Duration(float64(time.Minute) / (rpm * pwm.PulsesPerRevolution))
}

// Run delivers rollover and tachometer interrupts to e until ctx is done.
func (b *Board) Run(ctx context.Context, e *pwm.Engine) {
	var wg sync.WaitGroup
	wg.Add(1 + pwm.NumChannels)
	go func() {
		defer wg.Done()
		b.rollover(ctx, e)
	}()
	for ch := range pwm.NumChannels {
		go func() {
			defer wg.Done()
			b.tach(ctx, e, ch)
		}()
	}
	wg.Wait()
}

func (b *Board) rollover(ctx context.Context, e *pwm.Engine) {
	tick := time.NewTicker(rolloverInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if b.Timer.Armed() {
				e.Rollover()
			}
		}
	}
}

func (b *Board) tach(ctx context.Context, e *pwm.Engine, ch int) {
	timer := time.NewTimer(idlePoll)
	defer timer.Stop()
	for {
		interval := b.edgeInterval(ch)
		wait := interval
		if wait == 0 {
			wait = idlePoll
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if interval > 0 {
			e.Edge(ch)
		}
	}
}
