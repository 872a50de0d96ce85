package pwm

import "math"

// RingSize is the number of edge timestamps kept per channel.
const RingSize = 16

// PulsesPerRevolution is the tachometer pulse count per shaft revolution.
const PulsesPerRevolution = 2

// Stall thresholds in microseconds.
const (
	// SpeedTimeout is how long after the last edge a speed read gives up
	// and reports 0.
	SpeedTimeout uint64 = 1_000_000

	// StallTimeout is how long after the last edge a running channel counts
	// as stalled for the status LED.
	StallTimeout uint64 = 500_000
)

// rpmNumerator is microseconds per minute times revolutions per ring.
const rpmNumerator = 60_000_000 * (RingSize / PulsesPerRevolution)

// capture is one channel's ring of edge timestamps. It is only touched with
// the engine mask held.
type capture struct {
	index uint8
	times [RingSize]uint64
	delta uint64
}

func (c *capture) record(now uint64) {
	i := (c.index + 1) % RingSize
	c.index = i
	old := c.times[i]
	c.times[i] = now
	c.delta = now - old
}

// prime makes the newest timestamp now, so a channel that was just enabled
// is not reported stalled before its fan has had time to spin up.
func (c *capture) prime(now uint64) {
	c.times[c.index] = now
}

func (c *capture) snapshot() Snapshot {
	return Snapshot{Last: c.times[c.index], Delta: c.delta}
}

// Snapshot is a consistent copy of a capture channel.
type Snapshot struct {
	Last  uint64 // newest edge timestamp, microseconds
	Delta uint64 // time spanned by the ring, microseconds; 0 if never filled
}

// Stalled reports whether no edge has arrived within timeout of now. An
// edge newer than now is recent.
func (s Snapshot) Stalled(now, timeout uint64) bool {
	return s.Delta == 0 || (now > s.Last && now-s.Last > timeout)
}

// RPM returns the shaft speed at now, or 0 if the channel has stalled.
// Speeds beyond the register range saturate.
func (s Snapshot) RPM(now uint64) uint16 {
	if s.Stalled(now, SpeedTimeout) {
		return 0
	}
	rpm := uint64(rpmNumerator) / s.Delta
	if rpm > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(rpm)
}
