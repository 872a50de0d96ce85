package fifo

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	devhal "github.com/ardnew/usbfan/device/hal"
	devfifo "github.com/ardnew/usbfan/device/hal/fifo"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
)

// DefaultTimeout bounds a single control transfer.
const DefaultTimeout = time.Second

var (
	_ hal.Transport = (*Transport)(nil)
	_ hal.Handle    = (*Handle)(nil)
)

// Transport finds devices attached under a bus directory.
type Transport struct {
	dir     string
	timeout atomic.Int64 // time.Duration
}

// New returns a transport over the bus at dir with DefaultTimeout.
func New(dir string) *Transport {
	t := &Transport{dir: dir}
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

// Enumerate implements hal.Transport. Candidate.Path is the name of the
// device directory.
func (t *Transport) Enumerate(capability uuid.UUID) iter.Seq[hal.Candidate] {
	return func(yield func(hal.Candidate) bool) {
		entries, err := os.ReadDir(t.dir)
		if err != nil {
			pkg.LogDebug(pkg.ComponentTransport, "bus unreadable", "dir", t.dir, "error", err)
			return
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), devfifo.DevicePrefix) {
				continue
			}
			c, err := t.probe(e.Name(), capability)
			if err != nil {
				pkg.LogDebug(pkg.ComponentTransport, "probe failed", "device", e.Name(), "error", err)
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

func (t *Transport) probe(name string, capability uuid.UUID) (hal.Candidate, error) {
	h, err := t.open(name)
	if err != nil {
		return hal.Candidate{}, err
	}
	defer h.Close()
	c, err := hal.Probe(h, capability)
	c.Path = name
	return c, err
}

// Open implements hal.Transport.
func (t *Transport) Open(c hal.Candidate) (hal.Handle, error) {
	return t.open(c.Path)
}

func (t *Transport) open(name string) (*Handle, error) {
	dir := filepath.Join(t.dir, name)
	token, err := devfifo.ReadMarker(dir)
	if err != nil {
		return nil, err
	}
	h := &Handle{dir: dir, token: token, timeout: time.Duration(t.timeout.Load())}
	if h.h2d, err = os.OpenFile(filepath.Join(dir, devfifo.HostToDevice), os.O_RDWR, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if h.d2h, err = os.OpenFile(filepath.Join(dir, devfifo.DeviceToHost), os.O_RDWR, 0); err != nil {
		h.h2d.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return h, nil
}

// Handle is a connection to one attachment of a device. Once the device
// detaches, transfers fail even if it attaches again at the same place.
type Handle struct {
	mu       sync.Mutex
	dir      string
	token    string
	timeout  time.Duration
	h2d, d2h *os.File
	buf      [devfifo.MaxPayload]byte
}

// Control implements hal.Handle. Transfers from several processes to one
// device are serialized with an advisory lock on its host_to_device FIFO.
func (h *Handle) Control(requestType, request uint8, value, index uint16, data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.h2d == nil {
		return 0, pkg.ErrClosed
	}
	if len(data) > devfifo.MaxPayload {
		return 0, pkg.ErrBufferTooSmall
	}
	setup := devhal.SetupPacket{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
	}
	deadline := time.Now().Add(h.timeout)
	poll := func() error {
		if !h.attached() {
			return h.removed()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", &setup, pkg.ErrTimeout)
		}
		return nil
	}
	if !h.attached() {
		return 0, h.removed()
	}

	if err := h.lock(poll); err != nil {
		return 0, err
	}
	defer h.unlock()

	if err := devfifo.Drain(h.d2h); err != nil {
		return 0, err
	}
	var pkt [devhal.SetupPacketSize]byte
	setup.MarshalTo(pkt[:])
	if err := devfifo.WriteMessage(h.h2d, devfifo.MsgSetup, pkt[:], deadline); err != nil {
		return 0, err
	}
	if !setup.IsDeviceToHost() && len(data) > 0 {
		if err := devfifo.WriteMessage(h.h2d, devfifo.MsgData, data, deadline); err != nil {
			return 0, err
		}
	}

	typ, n, err := devfifo.ReadMessage(h.d2h, h.buf[:], poll)
	if err != nil {
		return 0, err
	}
	switch typ {
	case devfifo.MsgData:
		if !setup.IsDeviceToHost() {
			return 0, pkg.ErrProtocol
		}
		return copy(data, h.buf[:n]), nil
	case devfifo.MsgAck:
		return len(data), nil
	case devfifo.MsgStall:
		return 0, fmt.Errorf("%s: %w", &setup, pkg.ErrStall)
	}
	return 0, fmt.Errorf("reply type %#x: %w", typ, pkg.ErrProtocol)
}

// attached reports whether the attachment h was opened on is current.
func (h *Handle) attached() bool {
	token, err := devfifo.ReadMarker(h.dir)
	return err == nil && token == h.token
}

func (h *Handle) removed() error {
	return fmt.Errorf("%w: %s: %w", pkg.ErrDeviceRemoved, h.dir, pkg.ErrNoDevice)
}

// lock takes the bus lock of the device, polling so that a holder that
// never lets go is bounded by the transfer deadline.
func (h *Handle) lock(poll func() error) error {
	for {
		err := h.flock(unix.LOCK_EX | unix.LOCK_NB)
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return err
		}
		if err := poll(); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *Handle) unlock() {
	h.flock(unix.LOCK_UN)
}

// flock works on the raw descriptor; os.File.Fd would put the FIFO back
// in blocking mode and disable read deadlines.
func (h *Handle) flock(how int) error {
	rc, err := h.h2d.SyscallConn()
	if err != nil {
		return err
	}
	var ferr error
	if err := rc.Control(func(fd uintptr) { ferr = unix.Flock(int(fd), how) }); err != nil {
		return err
	}
	return ferr
}

// Close implements hal.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.h2d == nil {
		return nil
	}
	err := errors.Join(h.h2d.Close(), h.d2h.Close())
	h.h2d, h.d2h = nil, nil
	return err
}
