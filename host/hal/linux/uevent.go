package linux

import (
	"bytes"
	"strings"
)

// ueventAction is the kernel's ACTION value.
type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
	ueventChange
	ueventBind
	ueventUnbind
)

var ueventActions = map[string]ueventAction{
	"add":    ueventAdd,
	"remove": ueventRemove,
	"change": ueventChange,
	"bind":   ueventBind,
	"unbind": ueventUnbind,
}

func (a ueventAction) String() string {
	for name, v := range ueventActions {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// uevent is a parsed kernel uevent message.
type uevent struct {
	action    ueventAction
	devpath   string
	subsystem string
	devtype   string
}

// isUSBDevice reports whether e concerns a whole USB device being added or
// removed, as opposed to one of its interfaces or a driver binding.
func (e uevent) isUSBDevice() bool {
	return e.subsystem == "usb" && e.devtype == "usb_device" &&
		(e.action == ueventAdd || e.action == ueventRemove)
}

// parseUEvent parses a kernel uevent: an "action@devpath" header followed
// by NUL-separated KEY=value pairs. Messages relayed by udev start with
// "libudev" and a binary header; those parse as unknown.
func parseUEvent(data []byte) uevent {
	var e uevent
	for i, field := range bytes.Split(data, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		s := string(field)
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			if i == 0 {
				if action, path, ok := strings.Cut(s, "@"); ok {
					e.action = ueventActions[action]
					e.devpath = path
				}
			}
			continue
		}
		switch key {
		case "ACTION":
			e.action = ueventActions[value]
		case "DEVPATH":
			e.devpath = value
		case "SUBSYSTEM":
			e.subsystem = value
		case "DEVTYPE":
			e.devtype = value
		}
	}
	return e
}
