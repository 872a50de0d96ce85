package loop

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/ardnew/usbfan/device/hal"
	"github.com/ardnew/usbfan/pkg"
)

// MaxControlDataSize is the largest data stage a port carries.
const MaxControlDataSize = 512

// Bus is a set of ports.
type Bus struct {
	mu    sync.Mutex
	ports []*Port
	wake  chan struct{}
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{wake: make(chan struct{})}
}

// Attach adds a new, unplugged port named name.
func (b *Bus) Attach(name string) *Port {
	p := &Port{
		bus:      b,
		name:     name,
		requests: make(chan *request),
		gone:     make(chan struct{}),
	}
	close(p.gone)
	b.mu.Lock()
	b.ports = append(b.ports, p)
	b.mu.Unlock()
	return p
}

// Ports yields every port on the bus, plugged or not.
func (b *Bus) Ports() iter.Seq[*Port] {
	b.mu.Lock()
	ports := append([]*Port(nil), b.ports...)
	b.mu.Unlock()
	return func(yield func(*Port) bool) {
		for _, p := range ports {
			if !yield(p) {
				return
			}
		}
	}
}

// Changed returns a channel closed at the next plug or unplug on the bus.
func (b *Bus) Changed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wake
}

func (b *Bus) notify() {
	b.mu.Lock()
	close(b.wake)
	b.wake = make(chan struct{})
	b.mu.Unlock()
}

type result struct {
	n   int
	err error
}

type request struct {
	setup hal.SetupPacket
	data  []byte // OUT data stage, or IN buffer owned by the request
	in    int    // bytes staged by WriteEP0
	gone  <-chan struct{}
	reply chan result
}

// Port is one attachment point on a bus. Its device side implements
// hal.DeviceHAL.
type Port struct {
	bus  *Bus
	name string

	mu      sync.Mutex
	plugged bool
	gone    chan struct{} // closed when the current attachment ends
	reset   bool
	address uint8

	requests chan *request
	cur      *request // owned by the device-side control loop
}

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// Plugged reports whether a device is attached at p.
func (p *Port) Plugged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plugged
}

// Address returns the address the device last set.
func (p *Port) Address() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

// Init implements hal.DeviceHAL.
func (p *Port) Init(ctx context.Context) error {
	return ctx.Err()
}

// Start plugs the port in.
func (p *Port) Start() error {
	p.mu.Lock()
	if p.plugged {
		p.mu.Unlock()
		return nil
	}
	p.plugged = true
	p.gone = make(chan struct{})
	p.reset = true
	p.address = 0
	p.mu.Unlock()

	pkg.LogDebug(pkg.ComponentHAL, "port plugged", "port", p.name)
	p.bus.notify()
	return nil
}

// Stop pulls the port out. Transfers in flight fail with pkg.ErrNoDevice.
func (p *Port) Stop() error {
	p.mu.Lock()
	if !p.plugged {
		p.mu.Unlock()
		return nil
	}
	p.plugged = false
	close(p.gone)
	p.mu.Unlock()

	pkg.LogDebug(pkg.ComponentHAL, "port unplugged", "port", p.name)
	p.bus.notify()
	return nil
}

// SetAddress implements hal.DeviceHAL.
func (p *Port) SetAddress(address uint8) error {
	p.mu.Lock()
	p.address = address
	p.mu.Unlock()
	return nil
}

// ReadSetup implements hal.DeviceHAL.
func (p *Port) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	p.mu.Lock()
	if p.reset {
		p.reset = false
		p.mu.Unlock()
		return pkg.ErrReset
	}
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-p.requests:
			p.mu.Lock()
			stale := req.gone != p.gone
			p.mu.Unlock()
			if stale {
				req.reply <- result{err: pkg.ErrNoDevice}
				continue
			}
			p.cur = req
			*out = req.setup
			return nil
		}
	}
}

// WriteEP0 implements hal.DeviceHAL.
func (p *Port) WriteEP0(ctx context.Context, data []byte) error {
	req := p.cur
	if req == nil {
		return pkg.ErrInvalidState
	}
	n := min(len(data), len(req.data)-req.in)
	req.in += copy(req.data[req.in:req.in+n], data)
	return nil
}

// ReadEP0 implements hal.DeviceHAL. An empty buf completes an IN transfer.
func (p *Port) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	req := p.cur
	if req == nil {
		return 0, pkg.ErrInvalidState
	}
	if len(buf) == 0 && req.setup.IsDeviceToHost() {
		p.complete(result{n: req.in})
		return 0, nil
	}
	return copy(buf, req.data), nil
}

// AckEP0 implements hal.DeviceHAL.
func (p *Port) AckEP0() error {
	if p.cur == nil {
		return pkg.ErrInvalidState
	}
	p.complete(result{n: len(p.cur.data)})
	return nil
}

// StallEP0 implements hal.DeviceHAL.
func (p *Port) StallEP0() error {
	if p.cur == nil {
		return pkg.ErrInvalidState
	}
	p.complete(result{err: pkg.ErrStall})
	return nil
}

// IsConnected implements hal.DeviceHAL.
func (p *Port) IsConnected() bool {
	return p.Plugged()
}

func (p *Port) complete(r result) {
	p.cur.reply <- r
	p.cur = nil
}

// Conn is a host-side connection to the device attached at a port.
type Conn struct {
	port *Port
	gone <-chan struct{}
}

// Open connects to the device currently attached at p.
func (p *Port) Open() (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.plugged {
		return nil, fmt.Errorf("port %s: %w", p.name, pkg.ErrNoDevice)
	}
	return &Conn{port: p, gone: p.gone}, nil
}

// Port returns the port c was opened on.
func (c *Conn) Port() *Port { return c.port }

// Control performs a control transfer. For device-to-host requests the
// data stage is read into data, at most setup.Length bytes; otherwise data
// is sent. It returns the data stage length.
func (c *Conn) Control(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	if len(data) > int(setup.Length) {
		data = data[:setup.Length]
	}
	if len(data) > MaxControlDataSize {
		return 0, pkg.ErrBufferTooSmall
	}
	in := setup.IsDeviceToHost()
	req := &request{setup: *setup, gone: c.gone, reply: make(chan result, 1)}
	if in {
		// The device may still fill the buffer after a timeout.
		req.data = make([]byte, len(data))
	} else {
		req.data = append([]byte(nil), data...)
	}

	// An ended attachment wins over a ready receiver of the next one.
	select {
	case <-c.gone:
		return 0, c.removed()
	default:
	}
	select {
	case <-c.gone:
		return 0, c.removed()
	case <-ctx.Done():
		return 0, ctx.Err()
	case c.port.requests <- req:
	}

	select {
	case <-c.gone:
		return 0, c.removed()
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-req.reply:
		if errors.Is(r.err, pkg.ErrNoDevice) {
			return 0, c.removed()
		}
		if in && r.err == nil {
			r.n = copy(data, req.data[:r.n])
		}
		return r.n, r.err
	}
}

func (c *Conn) removed() error {
	return fmt.Errorf("port %s: %w", c.port.name, pkg.ErrNoDevice)
}
