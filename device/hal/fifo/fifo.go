package fifo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ardnew/usbfan/device/hal"
	"github.com/ardnew/usbfan/pkg"
)

// replyTimeout bounds a reply write to a host that stopped reading.
const replyTimeout = time.Second

var _ hal.DeviceHAL = (*HAL)(nil)

// HAL is the device side of one attachment point on a FIFO bus.
type HAL struct {
	dir string

	mu        sync.Mutex
	h2d, d2h  *os.File
	closeCh   chan struct{}
	connected bool
	reset     bool
	address   uint8

	// Transfer in progress, owned by the control loop.
	setup hal.SetupPacket
	out   []byte
	in    []byte
	rx    [MaxPayload]byte
}

// New returns a HAL that attaches under busDir in a directory of its own.
// The directory keeps its name across Stop and Init.
func New(busDir string) *HAL {
	return &HAL{dir: filepath.Join(busDir, DevicePrefix+uuid.NewString())}
}

// DeviceDir returns the directory h attaches at.
func (h *HAL) DeviceDir() string { return h.dir }

// Init creates the device directory and its FIFOs.
func (h *HAL) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.h2d != nil {
		return nil
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	files := make([]*os.File, 0, 2)
	for _, name := range []string{HostToDevice, DeviceToHost} {
		path := filepath.Join(h.dir, name)
		os.Remove(path)
		if err := unix.Mkfifo(path, 0o666); err != nil {
			closeAll(files)
			return fmt.Errorf("mkfifo %s: %w", path, err)
		}
		// Read-write so neither end blocks opening or sees EOF when the
		// other goes away.
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			closeAll(files)
			return err
		}
		files = append(files, f)
	}
	h.h2d, h.d2h = files[0], files[1]
	h.closeCh = make(chan struct{})
	pkg.LogDebug(pkg.ComponentHAL, "fifo device initialized", "dir", h.dir)
	return nil
}

// Start publishes the connection marker, which is what hosts look for.
func (h *HAL) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.h2d == nil {
		return pkg.ErrInvalidState
	}
	if h.connected {
		return nil
	}
	if err := Drain(h.h2d); err != nil {
		return err
	}
	if err := WriteMarker(h.dir, uuid.NewString()); err != nil {
		return err
	}
	h.connected = true
	h.reset = true
	h.address = 0
	pkg.LogDebug(pkg.ComponentHAL, "fifo device attached", "dir", h.dir)
	return nil
}

// Stop detaches and removes the device directory.
func (h *HAL) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.h2d == nil {
		return nil
	}
	h.connected = false
	close(h.closeCh)
	closeAll([]*os.File{h.h2d, h.d2h})
	h.h2d, h.d2h = nil, nil
	pkg.LogDebug(pkg.ComponentHAL, "fifo device detached", "dir", h.dir)
	return os.RemoveAll(h.dir)
}

// SetAddress implements hal.DeviceHAL.
func (h *HAL) SetAddress(address uint8) error {
	h.mu.Lock()
	h.address = address
	h.mu.Unlock()
	return nil
}

// ReadSetup implements hal.DeviceHAL. The OUT data stage, if any, is read
// along with the SETUP packet.
func (h *HAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	h.mu.Lock()
	f, done, reset := h.h2d, h.closeCh, h.reset
	h.reset = false
	h.mu.Unlock()
	if f == nil {
		return pkg.ErrInvalidState
	}
	if reset {
		return pkg.ErrReset
	}

	poll := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return pkg.ErrNoDevice
		default:
			return nil
		}
	}
	for {
		typ, n, err := ReadMessage(f, h.rx[:], poll)
		if err != nil {
			return err
		}
		if typ == MsgSetup && hal.ParseSetupPacket(h.rx[:n], out) {
			break
		}
		pkg.LogDebug(pkg.ComponentHAL, "fifo message out of sequence", "type", typ, "length", n)
	}

	h.setup = *out
	h.in = h.in[:0]
	h.out = h.out[:0]
	if out.IsDeviceToHost() || out.Length == 0 {
		return nil
	}
	typ, n, err := ReadMessage(f, h.rx[:], poll)
	if err != nil {
		return err
	}
	if typ != MsgData {
		h.StallEP0()
		return fmt.Errorf("%s: data stage: %w", out, pkg.ErrProtocol)
	}
	h.out = append(h.out, h.rx[:n]...)
	return nil
}

// WriteEP0 implements hal.DeviceHAL. Data beyond wLength is dropped.
func (h *HAL) WriteEP0(ctx context.Context, data []byte) error {
	room := int(h.setup.Length) - len(h.in)
	h.in = append(h.in, data[:min(len(data), max(room, 0))]...)
	return nil
}

// ReadEP0 implements hal.DeviceHAL. An empty buf completes an IN transfer
// by sending the staged data.
func (h *HAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 && h.setup.IsDeviceToHost() {
		return 0, h.reply(MsgData, h.in)
	}
	return copy(buf, h.out), nil
}

// AckEP0 implements hal.DeviceHAL.
func (h *HAL) AckEP0() error {
	return h.reply(MsgAck, nil)
}

// StallEP0 implements hal.DeviceHAL.
func (h *HAL) StallEP0() error {
	return h.reply(MsgStall, nil)
}

// IsConnected implements hal.DeviceHAL.
func (h *HAL) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *HAL) reply(typ byte, payload []byte) error {
	h.mu.Lock()
	f := h.d2h
	h.mu.Unlock()
	if f == nil {
		return pkg.ErrNoDevice
	}
	return WriteMessage(f, typ, payload, time.Now().Add(replyTimeout))
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
