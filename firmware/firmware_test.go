package firmware

import (
	"sync"
	"testing"

	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/regmap"
)

// =============================================================================
// Mock hardware
// =============================================================================

type nopTimer struct{}

func (nopTimer) SetTop(uint16)          {}
func (nopTimer) SetCompare(int, uint16) {}
func (nopTimer) SetOutputs(pwm.Outputs) {}
func (nopTimer) ResetCounter()          {}
func (nopTimer) EnableRollover(bool)    {}

type fakeClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *fakeClock) Micros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeSystem struct {
	mu     sync.Mutex
	resets []regmap.ResetMode
}

func (s *fakeSystem) Reset(mode regmap.ResetMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, mode)
	return nil
}

func (s *fakeSystem) last() (regmap.ResetMode, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.resets) == 0 {
		return 0, 0
	}
	return s.resets[len(s.resets)-1], len(s.resets)
}

var testUID = []byte{0x5a, 0x31, 0x00, 0xff, 0x10, 0x22, 0x43, 0x8e, 0x01, 0x77}

// newTestController returns a started controller over mem.
func newTestController(t *testing.T, mem *store.Memory) (*Controller, *fakeSystem) {
	t.Helper()
	sys := &fakeSystem{}
	ctrl := New(newEngine(), store.New(mem), sys, testUID)
	ctrl.Begin()
	return ctrl, sys
}

func newEngine() *pwm.Engine {
	return pwm.NewEngine(nopTimer{}, &fakeClock{now: 1_000_000}, nil)
}
