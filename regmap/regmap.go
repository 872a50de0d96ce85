package regmap

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/ardnew/usbfan/pkg"
)

// Address is a register address. It travels in bRequest.
type Address uint8

// Register addresses.
const (
	AddrVersion       Address = 0x00
	AddrDuty0         Address = 0x10
	AddrPeriod        Address = 0x11
	AddrTach0         Address = 0x12
	AddrDuty1         Address = 0x20
	AddrTach1         Address = 0x22
	AddrResetControl  Address = 0xf0
	AddrLEDControl    Address = 0xf1
	AddrConfigControl Address = 0xf2
	AddrShortName     Address = 0xf8
)

// NumChannels is the number of PWM/tachometer channel pairs.
const NumChannels = 2

// channelStride separates the duty and tach registers of adjacent channels.
const channelStride = 0x10

// ShortNameLen is the length of the short name register in characters.
const ShortNameLen = 16

// Direction describes which operations a register accepts.
type Direction uint8

// Register directions.
const (
	Read Direction = 1 << iota
	Write
	ReadWrite = Read | Write
)

// CanRead reports whether the register may be read.
func (d Direction) CanRead() bool { return d&Read != 0 }

// CanWrite reports whether the register may be written.
func (d Direction) CanWrite() bool { return d&Write != 0 }

// String returns "R", "W", or "RW".
func (d Direction) String() string {
	switch d {
	case Read:
		return "R"
	case Write:
		return "W"
	case ReadWrite:
		return "RW"
	default:
		return "-"
	}
}

// Register describes one addressable register.
type Register struct {
	Address   Address
	Name      string
	Direction Direction
	Width     int  // bytes returned by a read
	Text      bool // read payload is ASCII rather than a little-endian integer
}

var registers = [...]Register{
	{AddrVersion, "version", Read, 2, false},
	{AddrDuty0, "duty0", ReadWrite, 2, false},
	{AddrPeriod, "period", ReadWrite, 2, false},
	{AddrTach0, "tach0", Read, 2, false},
	{AddrDuty1, "duty1", ReadWrite, 2, false},
	{AddrTach1, "tach1", Read, 2, false},
	{AddrResetControl, "reset", Write, 2, false},
	{AddrLEDControl, "led", ReadWrite, 2, false},
	{AddrConfigControl, "config", Write, 2, false},
	{AddrShortName, "name", Read, ShortNameLen, true},
}

// Lookup returns the register at address a.
func Lookup(a Address) (Register, bool) {
	for _, r := range registers {
		if r.Address == a {
			return r, true
		}
	}
	return Register{}, false
}

// Registers yields every defined register in address order.
func Registers() iter.Seq[Register] {
	return func(yield func(Register) bool) {
		for _, r := range registers {
			if !yield(r) {
				return
			}
		}
	}
}

// String returns the register name, or the address in hex if undefined.
func (a Address) String() string {
	if r, ok := Lookup(a); ok {
		return r.Name
	}
	return fmt.Sprintf("0x%02x", uint8(a))
}

// ParseAddress accepts a register name or a number in any base
// strconv.ParseUint understands with base 0.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	for _, r := range registers {
		if strings.EqualFold(r.Name, s) {
			return r.Address, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: register %q", pkg.ErrInvalidParameter, s)
	}
	return Address(n), nil
}

// DutyRegister returns the duty register of channel ch.
func DutyRegister(ch int) (Address, error) {
	if ch < 0 || ch >= NumChannels {
		return 0, fmt.Errorf("%w: channel %d", pkg.ErrInvalidParameter, ch)
	}
	return AddrDuty0 + Address(ch*channelStride), nil
}

// TachRegister returns the tachometer register of channel ch.
func TachRegister(ch int) (Address, error) {
	if ch < 0 || ch >= NumChannels {
		return 0, fmt.Errorf("%w: channel %d", pkg.ErrInvalidParameter, ch)
	}
	return AddrTach0 + Address(ch*channelStride), nil
}

// Channel returns the channel a duty or tach register belongs to.
func (a Address) Channel() (int, bool) {
	switch a {
	case AddrDuty0, AddrTach0:
		return 0, true
	case AddrDuty1, AddrTach1:
		return 1, true
	}
	return 0, false
}
