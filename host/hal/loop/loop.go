// Package loop is a host transport over the in-process USB bus of
// [github.com/ardnew/usbfan/device/hal/loop].
//
// An unplugged port is the removal signal: transfers on a Conn whose port
// was pulled fail with pkg.ErrNoDevice, which Handle reports as
// pkg.ErrDeviceRemoved.
package loop

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	devhal "github.com/ardnew/usbfan/device/hal"
	devloop "github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
)

// DefaultTimeout bounds a single control transfer.
const DefaultTimeout = time.Second

var (
	_ hal.Transport = (*Transport)(nil)
	_ hal.Notifier  = (*Transport)(nil)
	_ hal.Handle    = (*Handle)(nil)
)

// Transport enumerates the ports of a bus.
type Transport struct {
	bus     *devloop.Bus
	timeout atomic.Int64 // time.Duration
}

// New returns a transport over bus with DefaultTimeout.
func New(bus *devloop.Bus) *Transport {
	t := &Transport{bus: bus}
	t.timeout.Store(int64(DefaultTimeout))
	return t
}

// SetTimeout changes the per-transfer timeout. Non-positive values restore
// DefaultTimeout.
func (t *Transport) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	t.timeout.Store(int64(d))
}

// Changed implements hal.Notifier.
func (t *Transport) Changed() <-chan struct{} {
	return t.bus.Changed()
}

// Enumerate implements hal.Transport. Candidate.Path is the port name.
func (t *Transport) Enumerate(capability uuid.UUID) iter.Seq[hal.Candidate] {
	return func(yield func(hal.Candidate) bool) {
		for port := range t.bus.Ports() {
			if !port.Plugged() {
				continue
			}
			c, err := t.probe(port, capability)
			if err != nil {
				pkg.LogDebug(pkg.ComponentTransport, "probe failed", "port", port.Name(), "error", err)
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

func (t *Transport) probe(port *devloop.Port, capability uuid.UUID) (hal.Candidate, error) {
	conn, err := port.Open()
	if err != nil {
		return hal.Candidate{}, err
	}
	h := t.handle(conn)
	defer h.Close()
	c, err := hal.Probe(h, capability)
	c.Path = port.Name()
	return c, err
}

// Open implements hal.Transport.
func (t *Transport) Open(c hal.Candidate) (hal.Handle, error) {
	for port := range t.bus.Ports() {
		if port.Name() != c.Path {
			continue
		}
		conn, err := port.Open()
		if err != nil {
			return nil, err
		}
		return t.handle(conn), nil
	}
	return nil, fmt.Errorf("port %s: %w", c.Path, pkg.ErrNoDevice)
}

func (t *Transport) handle(conn *devloop.Conn) *Handle {
	return &Handle{conn: conn, timeout: time.Duration(t.timeout.Load())}
}

// Handle is a connection to one port.
type Handle struct {
	mu      sync.Mutex
	conn    *devloop.Conn
	timeout time.Duration
}

// Control implements hal.Handle.
func (h *Handle) Control(requestType, request uint8, value, index uint16, data []byte) (int, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return 0, pkg.ErrClosed
	}

	setup := devhal.SetupPacket{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	n, err := conn.Control(ctx, &setup, data)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, pkg.ErrNoDevice):
		return n, fmt.Errorf("%w: %w", pkg.ErrDeviceRemoved, err)
	case errors.Is(err, context.DeadlineExceeded):
		return n, fmt.Errorf("%s: %w", &setup, pkg.ErrTimeout)
	}
	return n, err
}

// Close implements hal.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.conn = nil
	h.mu.Unlock()
	return nil
}
