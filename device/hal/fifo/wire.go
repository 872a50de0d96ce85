package fifo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbfan/pkg"
)

// Names inside the bus directory.
const (
	DevicePrefix = "device-"
	HostToDevice = "host_to_device"
	DeviceToHost = "device_to_host"
	Connection   = "connection"
)

// Message types. A message is [type, len_lo, len_hi, payload...].
const (
	MsgSetup byte = 0x01 // host → device: 8-byte SETUP packet
	MsgData  byte = 0x02 // OUT data stage, or IN reply
	MsgAck   byte = 0x03 // device → host: OUT or no-data transfer done
	MsgStall byte = 0x04 // device → host: request stalled
)

const (
	HeaderSize = 3
	MaxPayload = 4096
)

// PollInterval bounds how long a blocked read goes without checking
// whether it should give up.
const PollInterval = 50 * time.Millisecond

// WriteMessage writes one message to f, failing once deadline passes.
func WriteMessage(f *os.File, typ byte, payload []byte, deadline time.Time) error {
	if len(payload) > MaxPayload {
		return pkg.ErrBufferTooSmall
	}
	var buf [HeaderSize + MaxPayload]byte
	buf[0] = typ
	binary.LittleEndian.PutUint16(buf[1:HeaderSize], uint16(len(payload)))
	n := HeaderSize + copy(buf[HeaderSize:], payload)

	if err := f.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := f.Write(buf[:n])
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return pkg.ErrTimeout
	}
	return err
}

// ReadMessage reads one message from f into buf. Each time a read waits
// PollInterval without completing, poll is called; a non-nil result
// abandons the read.
func ReadMessage(f *os.File, buf []byte, poll func() error) (byte, int, error) {
	var hdr [HeaderSize]byte
	if err := readFull(f, hdr[:], poll); err != nil {
		return 0, 0, err
	}
	n := int(binary.LittleEndian.Uint16(hdr[1:]))
	if n > len(buf) {
		return hdr[0], 0, pkg.ErrBufferTooSmall
	}
	if err := readFull(f, buf[:n], poll); err != nil {
		return hdr[0], 0, err
	}
	return hdr[0], n, nil
}

func readFull(f *os.File, buf []byte, poll func() error) error {
	for total := 0; total < len(buf); {
		if err := f.SetReadDeadline(time.Now().Add(PollInterval)); err != nil {
			return err
		}
		n, err := f.Read(buf[total:])
		total += n
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			if err := poll(); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// Drain discards whatever is buffered in f without waiting.
func Drain(f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var buf [512]byte
	for {
		var n int
		var rerr error
		err := rc.Read(func(fd uintptr) bool {
			n, rerr = unix.Read(int(fd), buf[:])
			return true
		})
		if err != nil {
			return err
		}
		switch {
		case rerr == unix.EAGAIN:
			return nil
		case rerr != nil:
			return rerr
		case n == 0:
			return nil
		}
	}
}

// WriteMarker publishes token as the connection marker of dir.
func WriteMarker(dir, token string) error {
	tmp := filepath.Join(dir, "."+Connection)
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, Connection))
}

// ReadMarker returns the token of the device attached at dir. It fails
// with pkg.ErrNoDevice if none is.
func ReadMarker(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, Connection))
	if err != nil {
		return "", fmt.Errorf("%s: %w", dir, pkg.ErrNoDevice)
	}
	return strings.TrimSpace(string(b)), nil
}
