package host

import (
	"context"
	"errors"
	"time"

	"github.com/asecurityteam/rolling"

	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// DefaultWindow is the number of samples a Monitor averages over.
const DefaultWindow = 10

// settleDelay is how long Run waits after a bus change before polling, so
// a returning device can finish enumerating.
const settleDelay = 50 * time.Millisecond

// Sample is one poll of every tachometer.
type Sample struct {
	Time    time.Time
	RPM     [regmap.NumChannels]uint16
	Average [regmap.NumChannels]float64 // over the last Window successful polls
	Err     error                       // RPM and Average are stale when set
}

// Monitor polls a fan's tachometers and keeps a rolling average per
// channel.
type Monitor struct {
	fan      *Fan
	window   int
	policies [regmap.NumChannels]*rolling.PointPolicy
	counts   [regmap.NumChannels]int
	last     Sample
	notifier hal.Notifier
}

// NewMonitor averages over window samples; non-positive uses
// DefaultWindow.
func NewMonitor(fan *Fan, window int) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Monitor{fan: fan, window: window}
	for i := range m.policies {
		m.policies[i] = rolling.NewPointPolicy(rolling.NewWindow(window))
	}
	return m
}

// SetNotifier makes Run poll early when n reports an attach or detach.
func (m *Monitor) SetNotifier(n hal.Notifier) {
	m.notifier = n
}

// Poll reads every tachometer once. A failed read leaves the averages
// untouched.
func (m *Monitor) Poll() Sample {
	s := m.last
	s.Time = time.Now()
	s.Err = nil
	var rpm [regmap.NumChannels]uint16
	for ch := range rpm {
		v, err := m.fan.RPM(ch)
		if err != nil {
			s.Err = err
			return s
		}
		rpm[ch] = v
	}
	for ch, v := range rpm {
		m.policies[ch].Append(float64(v))
		m.counts[ch] = min(m.counts[ch]+1, m.window)
		s.RPM[ch] = v
		// Unfilled window slots hold zero, so divide by the filled count.
		s.Average[ch] = m.policies[ch].Reduce(rolling.Sum) / float64(m.counts[ch])
	}
	m.last = s
	return s
}

// Run polls every interval and passes each sample to fn until ctx is
// done. A device that is absent or unplugged is not an error; Run keeps
// polling and fn sees the condition in Sample.Err.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, fn func(Sample)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s := m.Poll()
		if s.Err != nil && !errors.Is(s.Err, pkg.ErrDeviceAbsent) && !pkg.IsRemoval(s.Err) {
			pkg.LogDebug(pkg.ComponentHost, "poll failed", "error", s.Err)
		}
		fn(s)

		var changed <-chan struct{}
		if m.notifier != nil {
			changed = m.notifier.Changed()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-changed:
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(min(settleDelay, interval)):
			}
		}
	}
}
