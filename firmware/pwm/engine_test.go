package pwm

import (
	"errors"
	"sync"
	"testing"

	"github.com/ardnew/usbfan/pkg"
)

// =============================================================================
// Mock hardware
// =============================================================================

type mockTimer struct {
	top      uint16
	compare  [NumChannels]uint16
	outputs  Outputs
	resets   int
	armed    bool
	armCount int
}

func (m *mockTimer) SetTop(top uint16)           { m.top = top }
func (m *mockTimer) SetCompare(ch int, v uint16) { m.compare[ch] = v }
func (m *mockTimer) SetOutputs(o Outputs)        { m.outputs = o }
func (m *mockTimer) ResetCounter()               { m.resets++ }

func (m *mockTimer) EnableRollover(on bool) {
	if on && !m.armed {
		m.armCount++
	}
	m.armed = on
}

// period simulates one full period: the rollover fires if armed.
func (m *mockTimer) period(e *Engine) {
	if m.armed {
		e.Rollover()
	}
}

type mockClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *mockClock) Micros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) advance(us uint64) {
	c.mu.Lock()
	c.now += us
	c.mu.Unlock()
}

func newTestEngine() (*Engine, *mockTimer, *mockClock) {
	tm := &mockTimer{}
	clk := &mockClock{now: 10_000_000}
	e := NewEngine(tm, clk, nil)
	e.Begin(640, [NumChannels]uint16{})
	return e, tm, clk
}

// spin feeds n edges on channel ch spaced interval microseconds apart.
func spin(e *Engine, clk *mockClock, ch, n int, interval uint64) {
	for i := 0; i < n; i++ {
		clk.advance(interval)
		e.Edge(ch)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestEngine_Begin(t *testing.T) {
	tm := &mockTimer{}
	e := NewEngine(tm, &mockClock{}, nil)
	e.Begin(640, [NumChannels]uint16{320, 0})

	if tm.top != 639 {
		t.Errorf("top = %d, want 639", tm.top)
	}
	if tm.compare[0] != 319 {
		t.Errorf("compare[0] = %d, want 319", tm.compare[0])
	}
	if tm.outputs != 1 {
		t.Errorf("outputs = %b, want 1", tm.outputs)
	}
	if e.Pending() || tm.armed {
		t.Error("Begin left a pending apply")
	}
	if got := e.Duty(0); got != 320 {
		t.Errorf("Duty(0) = %d, want 320", got)
	}
	if got := e.Duty(1); got != 0 {
		t.Errorf("Duty(1) = %d, want 0", got)
	}
}

func TestEngine_SetDutyStagesEnable(t *testing.T) {
	e, tm, _ := newTestEngine()

	if err := e.SetDuty(1, 100); err != nil {
		t.Fatalf("SetDuty() error = %v", err)
	}
	if tm.compare[1] != 99 {
		t.Errorf("compare[1] = %d, want 99", tm.compare[1])
	}
	if !e.Pending() || !tm.armed {
		t.Fatal("enable not staged")
	}
	if tm.outputs.Enabled(1) || e.Active().Enabled(1) {
		t.Error("output enabled before rollover")
	}

	tm.period(e)

	if !tm.outputs.Enabled(1) || !e.Active().Enabled(1) {
		t.Error("output not enabled after rollover")
	}
	if e.Pending() || tm.armed {
		t.Error("rollover did not disarm")
	}
}

func TestEngine_SetDutyIdempotent(t *testing.T) {
	e, tm, _ := newTestEngine()

	if err := e.SetDuty(0, 200); err != nil {
		t.Fatal(err)
	}
	tm.period(e)
	if err := e.SetDuty(0, 200); err != nil {
		t.Fatal(err)
	}
	if e.Pending() || tm.armCount != 1 {
		t.Errorf("second write armed rollover: pending=%v armCount=%d", e.Pending(), tm.armCount)
	}

	// A different non-zero duty only moves the compare value.
	if err := e.SetDuty(0, 300); err != nil {
		t.Fatal(err)
	}
	if e.Pending() || tm.armCount != 1 {
		t.Errorf("duty change armed rollover: pending=%v armCount=%d", e.Pending(), tm.armCount)
	}
	if tm.compare[0] != 299 {
		t.Errorf("compare[0] = %d, want 299", tm.compare[0])
	}
}

func TestEngine_DisableBeforeRollover(t *testing.T) {
	e, tm, _ := newTestEngine()

	_ = e.SetDuty(0, 200)
	_ = e.SetDuty(0, 0)
	if got := e.Duty(0); got != 0 {
		t.Errorf("Duty(0) = %d, want 0", got)
	}
	// Staged set is back to the active set, but the armed rollover still
	// runs once and leaves the output off.
	tm.period(e)
	if tm.outputs.Enabled(0) {
		t.Error("output enabled after enable+disable")
	}
}

func TestEngine_DutyReadBack(t *testing.T) {
	pairs := []struct{ period, duty uint16 }{
		{640, 0}, {640, 1}, {640, 320}, {640, 640},
		{1, 1}, {65535, 65535}, {16000, 8000},
	}
	for _, p := range pairs {
		e, tm, _ := newTestEngine()
		e.SetPeriod(p.period)
		for ch := 0; ch < NumChannels; ch++ {
			if err := e.SetDuty(ch, p.duty); err != nil {
				t.Fatal(err)
			}
		}
		tm.period(e)
		for ch := 0; ch < NumChannels; ch++ {
			if got := e.Duty(ch); got != p.duty {
				t.Errorf("period %d: Duty(%d) = %d, want %d", p.period, ch, got, p.duty)
			}
			if got := tm.outputs.Enabled(ch); got != (p.duty != 0) {
				t.Errorf("period %d duty %d: output %d enabled = %v", p.period, p.duty, ch, got)
			}
		}
		if e.Pending() {
			t.Errorf("period %d duty %d: pending after a full period", p.period, p.duty)
		}
	}
}

func TestEngine_SetPeriod(t *testing.T) {
	e, tm, _ := newTestEngine()
	resets := tm.resets

	e.SetPeriod(1000)
	if tm.top != 999 {
		t.Errorf("top = %d, want 999", tm.top)
	}
	if tm.resets != resets+1 {
		t.Errorf("counter resets = %d, want %d", tm.resets, resets+1)
	}
	if got := e.Period(); got != 1000 {
		t.Errorf("Period() = %d, want 1000", got)
	}
	if e.Pending() {
		t.Error("period write staged a rollover")
	}

	e.SetPeriod(0)
	if tm.top != 0xffff {
		t.Errorf("top = %#x, want 0xffff", tm.top)
	}
}

func TestEngine_InvalidChannel(t *testing.T) {
	e, _, _ := newTestEngine()
	if err := e.SetDuty(NumChannels, 1); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("SetDuty(bad) error = %v, want ErrInvalidParameter", err)
	}
	if got := e.Speed(-1); got != 0 {
		t.Errorf("Speed(-1) = %d, want 0", got)
	}
	e.Edge(NumChannels)
}

func TestEngine_Speed(t *testing.T) {
	tests := []struct {
		name     string
		interval uint64 // microseconds between edges
		want     uint16
	}{
		{"1200 rpm", 25_000, 1200},
		{"3000 rpm", 10_000, 3000},
		{"saturates", 100, 0xffff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, clk := newTestEngine()
			spin(e, clk, 0, 2*RingSize, tt.interval)
			if got := e.Speed(0); got != tt.want {
				t.Errorf("Speed(0) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEngine_SpeedZeroAfterTimeout(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		e, tm, clk := newTestEngine()
		if enabled {
			_ = e.SetDuty(0, 320)
			tm.period(e)
		}
		spin(e, clk, 0, 2*RingSize, 25_000)
		if got := e.Speed(0); got == 0 {
			t.Fatalf("enabled=%v: Speed(0) = 0 while spinning", enabled)
		}
		clk.advance(SpeedTimeout)
		if got := e.Speed(0); got == 0 {
			t.Errorf("enabled=%v: Speed(0) = 0 at exactly the timeout", enabled)
		}
		clk.advance(1)
		if got := e.Speed(0); got != 0 {
			t.Errorf("enabled=%v: Speed(0) = %d after timeout, want 0", enabled, got)
		}
	}
}

func TestEngine_SpeedZeroAcross32BitWrap(t *testing.T) {
	e, tm, clk := newTestEngine()
	_ = e.SetDuty(0, 320)
	tm.period(e)
	spin(e, clk, 0, 2*RingSize, 25_000)
	if got := e.Speed(0); got != 1200 {
		t.Fatalf("Speed(0) = %d, want 1200", got)
	}

	// A stopped fan stays stopped when the elapsed time passes 2^32 us.
	for _, elapsed := range []uint64{2_000_000, 1<<32 + 500_000, 2<<32 + 100} {
		clk.advance(elapsed - (clk.Micros() - e.Snapshot(0).Last))
		if got := e.Speed(0); got != 0 {
			t.Errorf("Speed(0) %d us after the last edge = %d, want 0", elapsed, got)
		}
		if !e.Stalled() {
			t.Errorf("Stalled() %d us after the last edge = false, want true", elapsed)
		}
	}
}

func TestSnapshot_EdgeNewerThanNow(t *testing.T) {
	s := Snapshot{Last: 2_000_000, Delta: 400_000}
	if s.Stalled(1_999_000, StallTimeout) {
		t.Error("Stalled() = true for an edge captured after now was read")
	}
}

func TestEngine_SpeedNeverSpun(t *testing.T) {
	e, _, _ := newTestEngine()
	if got := e.Speed(1); got != 0 {
		t.Errorf("Speed(1) = %d, want 0", got)
	}
}

func TestEngine_Stalled(t *testing.T) {
	e, tm, clk := newTestEngine()

	if e.Stalled() {
		t.Error("Stalled() with both outputs off")
	}

	// Spin channel 0 up, then let it sit idle with the output off.
	spin(e, clk, 0, 2*RingSize, 25_000)
	clk.advance(10 * StallTimeout)
	if e.Stalled() {
		t.Error("disabled channel reported stalled")
	}

	// Enabling primes the capture so the fan gets StallTimeout to start.
	_ = e.SetDuty(0, 320)
	tm.period(e)
	if e.Stalled() {
		t.Error("Stalled() right after enable")
	}
	clk.advance(StallTimeout + 1)
	if !e.Stalled() {
		t.Error("Stalled() = false after StallTimeout without edges")
	}
	spin(e, clk, 0, 1, 1000)
	if e.Stalled() {
		t.Error("Stalled() = true after a fresh edge")
	}
}

func TestEngine_StalledNeverSpun(t *testing.T) {
	e, _, _ := newTestEngine()
	_ = e.SetDuty(1, 100)
	// delta is still 0: no edge has ever arrived on channel 1.
	if !e.Stalled() {
		t.Error("Stalled() = false for an enabled channel that never produced an edge")
	}
}

func TestEngine_ConcurrentEdges(t *testing.T) {
	e, _, clk := newTestEngine()
	var wg sync.WaitGroup
	for ch := 0; ch < NumChannels; ch++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				clk.advance(10)
				e.Edge(ch)
			}
		}(ch)
	}
	for i := 0; i < 1000; i++ {
		s := e.Snapshot(i % NumChannels)
		_ = s.RPM(clk.Micros())
	}
	wg.Wait()
}
