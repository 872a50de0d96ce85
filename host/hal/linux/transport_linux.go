//go:build linux

package linux

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

var (
	_ hal.Transport = (*Transport)(nil)
	_ hal.Notifier  = (*Transport)(nil)
	_ hal.Handle    = (*Handle)(nil)
)

// Transport finds fans through sysfs and talks to them through usbfs.
type Transport struct {
	// SysfsRoot and DevfsRoot default to SysfsUSBPath and DevfsUSBPath.
	SysfsRoot string
	DevfsRoot string

	timeout atomic.Int64 // time.Duration

	mu   sync.Mutex
	wake chan struct{}
}

// New returns a transport using the standard sysfs and devfs paths.
func New() *Transport {
	t := &Transport{
		SysfsRoot: SysfsUSBPath,
		DevfsRoot: DevfsUSBPath,
		wake:      make(chan struct{}),
	}
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

// Changed implements hal.Notifier. Without [Transport.WatchHotplug] the
// channel never closes.
func (t *Transport) Changed() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wake
}

// notify wakes everyone waiting on Changed.
func (t *Transport) notify() {
	t.mu.Lock()
	close(t.wake)
	t.wake = make(chan struct{})
	t.mu.Unlock()
}

// Enumerate implements hal.Transport. Devices reporting a bcdUSB below
// 2.01 in sysfs are not opened. Candidate.Path is the device node.
func (t *Transport) Enumerate(capability uuid.UUID) iter.Seq[hal.Candidate] {
	return func(yield func(hal.Candidate) bool) {
		devices, err := scanDevices(t.SysfsRoot)
		if err != nil {
			pkg.LogWarn(pkg.ComponentTransport, "sysfs scan failed", "root", t.SysfsRoot, "error", err)
			return
		}
		for _, dev := range devices {
			if dev.usbVersion < regmap.MinBCDUSB {
				continue
			}
			path := dev.devfsPath(t.DevfsRoot)
			c, err := t.probe(path, capability)
			if err != nil {
				pkg.LogDebug(pkg.ComponentTransport, "probe failed",
					"device", dev.name, "path", path, "error", err)
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

func (t *Transport) probe(path string, capability uuid.UUID) (hal.Candidate, error) {
	h, err := t.open(path)
	if err != nil {
		return hal.Candidate{}, err
	}
	defer h.Close()
	c, err := hal.Probe(h, capability)
	c.Path = path
	return c, err
}

// Open implements hal.Transport.
func (t *Transport) Open(c hal.Candidate) (hal.Handle, error) {
	h, err := t.open(c.Path)
	if err != nil {
		return nil, err
	}
	if err := claimInterface(h.fd, uint32(c.Interface)); err != nil {
		// The kernel claims the interface on first use anyway.
		pkg.LogDebug(pkg.ComponentTransport, "claim interface failed",
			"path", c.Path, "interface", c.Interface, "error", err)
	}
	return h, nil
}

func (t *Transport) open(path string) (*Handle, error) {
	fd, err := openDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, classify(err))
	}
	return &Handle{fd: fd, timeout: time.Duration(t.timeout.Load())}, nil
}

// Handle is an open usbfs device node.
type Handle struct {
	mu      sync.Mutex
	fd      int
	timeout time.Duration
}

// Control implements hal.Handle.
func (h *Handle) Control(requestType, request uint8, value, index uint16, data []byte) (int, error) {
	if len(data) > maxControlTransferSize {
		return 0, fmt.Errorf("control length %d: %w", len(data), pkg.ErrBufferTooSmall)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return 0, pkg.ErrClosed
	}
	xfer := ctrlTransfer{
		requestType: requestType,
		request:     request,
		value:       value,
		index:       index,
		length:      uint16(len(data)),
		timeout:     uint32(h.timeout / time.Millisecond),
	}
	if len(data) > 0 {
		xfer.data = unsafe.Pointer(&data[0])
	}
	n, err := control(h.fd, &xfer)
	if err != nil {
		return 0, fmt.Errorf("control %02x/%02x: %w", requestType, request, classify(err))
	}
	return n, nil
}

// Close implements hal.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return err
}
