package host

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// State is the connection state of a Session.
type State uint8

// Session states.
const (
	Connected    State = iota // holds an open handle
	Disconnected              // holds none; the next operation reacquires
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// EventKind identifies a session transition.
type EventKind uint8

// Session transitions.
const (
	EventUnplugged EventKind = iota + 1 // Connected to Disconnected
	EventReplugged                      // Disconnected to Connected
)

func (k EventKind) String() string {
	switch k {
	case EventUnplugged:
		return "unplugged"
	case EventReplugged:
		return "replugged"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event reports a session transition.
type Event struct {
	Kind   EventKind
	Serial string
	Path   string // device path the transition concerns
	Time   time.Time
}

// Op is a protocol operation run against the current handle. iface is the
// fan interface number of the device behind h.
type Op func(h hal.Handle, iface uint8) error

// Session is a logical connection to one fan device identified by its
// serial number. It survives the device being unplugged and plugged back
// in: an operation that fails because the device vanished is retried once
// on the reacquired device, and an operation started while the device is
// away fails with pkg.ErrDeviceAbsent.
//
// Operations are serialized. Concurrent callers that all observe a
// removal reacquire the device once and share the new handle.
type Session struct {
	transport  hal.Transport
	capability uuid.UUID
	serial     string

	mutex   sync.Mutex
	handle  hal.Handle // nil exactly when Disconnected
	info    hal.Candidate
	closed  bool
	onEvent func(Event)
}

// NewSession opens the device c describes and returns a Connected session
// keyed by c.Serial. The device's interface version must be compatible.
func NewSession(t hal.Transport, c hal.Candidate, capability uuid.UUID) (*Session, error) {
	if err := c.Version.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path, err)
	}
	h, err := t.Open(c)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Path, err)
	}
	pkg.LogDebug(pkg.ComponentSession, "session opened", "serial", c.Serial, "path", c.Path)
	return &Session{
		transport:  t,
		capability: capability,
		serial:     c.Serial,
		handle:     h,
		info:       c,
	}, nil
}

// Open finds the device with serial number serial and opens a session on
// it. It returns pkg.ErrDeviceAbsent if no such device is attached.
func Open(t hal.Transport, capability uuid.UUID, serial string) (*Session, error) {
	for c := range Discover(t, capability) {
		if c.Serial == serial {
			return NewSession(t, c, capability)
		}
	}
	return nil, fmt.Errorf("serial %s: %w", serial, pkg.ErrDeviceAbsent)
}

// SetOnEvent sets a callback invoked for every transition. It runs with
// the session locked and must not call back into the session.
func (s *Session) SetOnEvent(cb func(Event)) {
	s.mutex.Lock()
	s.onEvent = cb
	s.mutex.Unlock()
}

// Serial returns the serial number the session is keyed by.
func (s *Session) Serial() string { return s.serial }

// State returns the current connection state.
func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.handle == nil {
		return Disconnected
	}
	return Connected
}

// Info returns the candidate the session last connected to.
func (s *Session) Info() hal.Candidate {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.info
}

// Do runs op on the device. If the session is Disconnected it first
// reacquires the device. If op fails with the removal signal the handle is
// dropped and op runs once more on the reacquired device. Other errors are
// returned unchanged.
func (s *Session) Do(op Op) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return pkg.ErrClosed
	}
	if s.handle == nil {
		if err := s.reacquire(); err != nil {
			return err
		}
	}

	err := op(s.handle, s.info.Interface)
	if !pkg.IsRemoval(err) {
		return err
	}
	s.drop(err)

	if err := s.reacquire(); err != nil {
		return err
	}
	if err = op(s.handle, s.info.Interface); pkg.IsRemoval(err) {
		s.drop(err)
	}
	return err
}

// Close releases the handle. Every later operation fails with
// pkg.ErrClosed.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	pkg.LogDebug(pkg.ComponentSession, "session closed", "serial", s.serial)
	return err
}

// drop releases the handle after a removal and moves to Disconnected.
func (s *Session) drop(cause error) {
	if err := s.handle.Close(); err != nil {
		pkg.LogDebug(pkg.ComponentSession, "close after removal", "serial", s.serial, "error", err)
	}
	s.handle = nil
	pkg.LogInfo(pkg.ComponentSession, "device unplugged", "serial", s.serial, "path", s.info.Path, "cause", cause)
	s.emit(EventUnplugged)
}

// reacquire adopts the first enumerated device whose serial number matches.
// On failure nothing stays open and the session remains Disconnected.
func (s *Session) reacquire() error {
	for c := range s.transport.Enumerate(s.capability) {
		if c.Serial != s.serial {
			continue
		}
		if err := c.Version.Check(); err != nil {
			pkg.LogWarn(pkg.ComponentSession, "skipping device", "serial", s.serial, "path", c.Path, "error", err)
			continue
		}
		h, err := s.transport.Open(c)
		if err != nil {
			pkg.LogDebug(pkg.ComponentSession, "reopen failed", "serial", s.serial, "path", c.Path, "error", err)
			continue
		}
		s.handle = h
		s.info = c
		pkg.LogInfo(pkg.ComponentSession, "device replugged", "serial", s.serial, "path", c.Path)
		s.emit(EventReplugged)
		return nil
	}
	return fmt.Errorf("serial %s: %w", s.serial, pkg.ErrDeviceAbsent)
}

func (s *Session) emit(kind EventKind) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(Event{Kind: kind, Serial: s.serial, Path: s.info.Path, Time: time.Now()})
}

// Discover yields the devices announcing capability whose interface
// version this host can drive. Incompatible devices are logged and
// skipped.
func Discover(t hal.Transport, capability uuid.UUID) iter.Seq[hal.Candidate] {
	return func(yield func(hal.Candidate) bool) {
		for c := range t.Enumerate(capability) {
			if err := c.Version.Check(); err != nil {
				pkg.LogWarn(pkg.ComponentHost, "skipping device", "path", c.Path, "serial", c.Serial, "error", err)
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// DefaultCapability is the capability UUID sessions look for when none
// is configured.
var DefaultCapability = regmap.CapabilityUUID
