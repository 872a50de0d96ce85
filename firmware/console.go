package firmware

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strconv"

	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Registers is the register access the console and the USB interface
// dispatch to. *Controller implements it.
type Registers interface {
	ReadRegister(addr regmap.Address, buf []byte) (int, error)
	WriteRegister(addr regmap.Address, value uint16) error
}

type consoleState uint8

const (
	stateIdle consoleState = iota
	stateRead
	stateWriteRegister
	stateWriteValue
	stateError
)

// Console replies and errors.
const (
	ReplyReadError  = "READ ERROR"
	ReplyWriteError = "WRITE ERROR"
	ReplyError      = "ERROR"
)

const (
	maxConsoleRegister = 0xff
	maxConsoleValue    = 0xffff
)

var crlf = []byte("\r\n")

// Console is the line-oriented debug command interpreter:
//
//	R<reg>          read a register, reply with its value
//	W<reg>,<value>  write a register, no reply on success
//
// Numbers are decimal, or hexadecimal with a 0x prefix. Input is echoed,
// with control and non-ASCII characters shown as '~'. A Console is not safe
// for concurrent use.
type Console struct {
	regs Registers
	out  *bufio.Writer

	state    consoleState
	register int // -1 until a digit is seen
	value    int // -1 until a digit is seen
	hex      bool

	buf [regmap.ShortNameLen]byte
}

// NewConsole returns a console that dispatches to regs and writes its echo
// and replies to w.
func NewConsole(regs Registers, w io.Writer) *Console {
	return &Console{regs: regs, out: bufio.NewWriter(w)}
}

// Write feeds p to the console as typed input and flushes the output.
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.feed(b)
	}
	return len(p), c.out.Flush()
}

// Serve feeds the console from r until ctx is cancelled or r reaches EOF.
// A reader that returns no data on a read timeout lets Serve observe ctx.
func (c *Console) Serve(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := c.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) feed(ch byte) {
	if ch == '\n' || ch == '\r' {
		c.endLine()
		return
	}

	if ch < 0x20 || ch >= 0x7f {
		ch = '~'
		c.state = stateError
	}
	c.out.WriteByte(ch)

	switch c.state {
	case stateIdle:
		switch ch {
		case 'R':
			c.state = stateRead
		case 'W':
			c.state = stateWriteRegister
		default:
			c.state = stateError
		}
		c.register, c.value, c.hex = -1, -1, false
	case stateRead, stateWriteRegister, stateWriteValue:
		c.digit(ch | 0x20)
	}
}

// digit consumes one lowercased character of a register or value field.
func (c *Console) digit(ch byte) {
	n := c.register
	if c.state == stateWriteValue {
		n = c.value
	}

	if n < 0 && ch != 'x' {
		if ch == ' ' {
			return
		}
		n = 0
	} else if n == 0 && ch != 'x' && ch != ',' && !c.hex {
		// leading zeros are only allowed as part of the hex prefix
		c.state = stateError
		return
	}

	switch {
	case ch >= '0' && ch <= '9':
		if c.hex {
			n = n*16 + int(ch-'0')
		} else {
			n = n*10 + int(ch-'0')
		}
	case ch >= 'a' && ch <= 'f' && c.hex:
		n = n*16 + int(ch-'a') + 10
	case ch == 'x' && n == 0 && !c.hex:
		n = -1
		c.hex = true
	case ch == ',' && c.state == stateWriteRegister:
		c.register = n
		if n > maxConsoleRegister {
			c.state = stateError
			return
		}
		c.hex = false
		c.state = stateWriteValue
		return
	default:
		c.state = stateError
	}

	if c.state == stateWriteValue {
		c.value = n
		if n > maxConsoleValue {
			c.state = stateError
		}
		return
	}
	c.register = n
	if n > maxConsoleRegister {
		c.state = stateError
	}
}

func (c *Console) endLine() {
	c.out.Write(crlf)

	switch {
	case c.state == stateRead && c.register >= 0:
		c.read(regmap.Address(c.register))
	case c.state == stateWriteValue && c.value >= 0:
		addr := regmap.Address(c.register)
		if err := c.regs.WriteRegister(addr, uint16(c.value)); err != nil {
			pkg.LogDebug(pkg.ComponentConsole, "write failed",
				"register", addr, "value", c.value, "error", err)
			c.println(ReplyWriteError)
		}
	case c.state != stateIdle:
		c.println(ReplyError)
	}
	c.state = stateIdle
}

func (c *Console) read(addr regmap.Address) {
	n, err := c.regs.ReadRegister(addr, c.buf[:])
	if err != nil {
		pkg.LogDebug(pkg.ComponentConsole, "read failed",
			"register", addr, "error", err)
		c.println(ReplyReadError)
		return
	}
	if reg, ok := regmap.Lookup(addr); ok && reg.Text {
		c.out.Write(c.buf[:n])
		c.out.Write(crlf)
		return
	}
	var word [2]byte
	copy(word[:], c.buf[:n])
	var num [8]byte
	c.out.Write(strconv.AppendUint(num[:0], uint64(binary.LittleEndian.Uint16(word[:])), 10))
	c.out.Write(crlf)
}

func (c *Console) println(s string) {
	c.out.WriteString(s)
	c.out.Write(crlf)
}
