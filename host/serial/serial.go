// Package serial reaches a fan's register map through its line-oriented
// debug console instead of USB control transfers.
//
// Each request is one line: "R<reg>" reads a register and is answered with
// its value, "W<reg>,<value>" writes one and is answered only on failure.
// The console echoes every line it receives. Numbers are sent in decimal.
//
// [Client] implements host.Registers, so a host.Fan works over either
// transport:
//
//	c, err := serial.Open("/dev/ttyACM0")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	fan := host.NewFan(c)
package serial

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

const (
	// DefaultBaudRate is the console's line rate.
	DefaultBaudRate = 115200

	// DefaultTimeout bounds the wait for each reply line.
	DefaultTimeout = time.Second
)

// Client issues register requests over a console connection. It is safe
// for concurrent use; requests are serialized.
type Client struct {
	name string

	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	closer io.Closer
}

// Open opens the serial port name at DefaultBaudRate.
func Open(name string) (*Client, error) {
	return OpenMode(name, &bugst.Mode{BaudRate: DefaultBaudRate}, DefaultTimeout)
}

// OpenMode opens the serial port name with mode, waiting at most timeout
// for each reply line.
func OpenMode(name string, mode *bugst.Mode, timeout time.Duration) (*Client, error) {
	port, err := bugst.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		pkg.LogDebug(pkg.ComponentSerial, "reset input buffer failed", "port", name, "error", err)
	}
	pkg.LogDebug(pkg.ComponentSerial, "port opened", "port", name, "baud", mode.BaudRate)
	c := New(port)
	c.name = name
	c.r = bufio.NewReader(timeoutReader{port})
	return c, nil
}

// New returns a client speaking over rw. If rw is an io.Closer, Close
// closes it.
func New(rw io.ReadWriter) *Client {
	c := &Client{name: "console", w: rw, r: bufio.NewReader(rw)}
	if closer, ok := rw.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// Name returns the port name.
func (c *Client) Name() string { return c.name }

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

// ReadRegister implements host.Registers. Numeric registers are returned
// little-endian in their register width, text registers verbatim.
func (c *Client) ReadRegister(a regmap.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := c.request(fmt.Sprintf("R%d", a))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a, err)
	}
	switch line {
	case firmware.ReplyReadError:
		return nil, fmt.Errorf("read %s: %w", a, pkg.ErrStall)
	case firmware.ReplyError:
		return nil, fmt.Errorf("read %s: %w", a, pkg.ErrInvalidRequest)
	}

	reg, ok := regmap.Lookup(a)
	if ok && reg.Text {
		return []byte(line), nil
	}
	width := 2
	if ok {
		width = reg.Width
	}
	v, err := strconv.ParseUint(line, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("read %s: reply %q: %w", a, line, pkg.ErrProtocol)
	}
	var word [2]byte
	binary.LittleEndian.PutUint16(word[:], uint16(v))
	buf := make([]byte, width)
	copy(buf, word[:])
	return buf, nil
}

// WriteRegister implements host.Registers. A blank line follows the
// request so that a rejected write can be told apart from a silent
// success; writes to the reset register skip it since the device may
// already be rebooting.
func (c *Client) WriteRegister(a regmap.Address, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := fmt.Sprintf("W%d,%d\n", a, value)
	if a != regmap.AddrResetControl {
		cmd += "\n"
	}
	if err := c.send(cmd); err != nil {
		return fmt.Errorf("write %s=%d: %w", a, value, err)
	}
	if _, err := c.line(); err != nil { // echo
		return fmt.Errorf("write %s=%d: %w", a, value, err)
	}
	if a == regmap.AddrResetControl {
		return nil
	}

	line, err := c.line()
	if err != nil {
		return fmt.Errorf("write %s=%d: %w", a, value, err)
	}
	switch line {
	case "":
		return nil
	case firmware.ReplyWriteError:
		c.line() // sync
		return fmt.Errorf("write %s=%d: %w", a, value, pkg.ErrStall)
	case firmware.ReplyError:
		c.line()
		return fmt.Errorf("write %s=%d: %w", a, value, pkg.ErrInvalidRequest)
	}
	return fmt.Errorf("write %s=%d: reply %q: %w", a, value, line, pkg.ErrProtocol)
}

// request sends cmd, skips its echo and returns the reply line.
func (c *Client) request(cmd string) (string, error) {
	if err := c.send(cmd + "\n"); err != nil {
		return "", err
	}
	if _, err := c.line(); err != nil {
		return "", err
	}
	return c.line()
}

func (c *Client) send(s string) error {
	pkg.LogDebug(pkg.ComponentSerial, "send", "port", c.name, "line", strings.TrimSpace(s))
	_, err := io.WriteString(c.w, s)
	return err
}

// line reads up to the next newline and strips the line ending.
func (c *Client) line() (string, error) {
	s, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s == "" {
			return "", fmt.Errorf("%s: %w", c.name, pkg.ErrDeviceRemoved)
		}
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// timeoutReader turns the empty read go.bug.st/serial returns on timeout
// into pkg.ErrTimeout.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, pkg.ErrTimeout
	}
	return n, err
}

// Port is a serial port that may be a fan console.
type Port struct {
	Name      string
	VendorID  uint16
	ProductID uint16
	Serial    string
	Product   string
}

// Ports lists USB serial ports whose vendor and product ID match. A zero
// vid or pid matches any.
func Ports(vid, pid uint16) ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	var ports []Port
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		v, verr := strconv.ParseUint(d.VID, 16, 16)
		p, perr := strconv.ParseUint(d.PID, 16, 16)
		if verr != nil || perr != nil {
			continue
		}
		if (vid != 0 && uint16(v) != vid) || (pid != 0 && uint16(p) != pid) {
			continue
		}
		ports = append(ports, Port{
			Name:      d.Name,
			VendorID:  uint16(v),
			ProductID: uint16(p),
			Serial:    d.SerialNumber,
			Product:   d.Product,
		})
	}
	return ports, nil
}
