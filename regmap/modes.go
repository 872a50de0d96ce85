package regmap

import (
	"fmt"
	"strings"

	"github.com/ardnew/usbfan/pkg"
)

// LEDMode selects what the status LED shows.
type LEDMode uint8

// LED modes, in register order.
const (
	LEDAuto  LEDMode = iota // blink while a running fan is stalled, else off
	LEDOn                   // steady on
	LEDOff                  // steady off
	LEDBlink                // blink unconditionally
)

// Valid reports whether m is a defined mode.
func (m LEDMode) Valid() bool { return m <= LEDBlink }

var ledModeNames = [...]string{"auto", "on", "off", "blink"}

// String returns the mode name.
func (m LEDMode) String() string {
	if m.Valid() {
		return ledModeNames[m]
	}
	return fmt.Sprintf("LEDMode(%d)", uint8(m))
}

// ParseLEDMode parses a mode name. "alert" is accepted for auto.
func ParseLEDMode(s string) (LEDMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "alert" {
		return LEDAuto, nil
	}
	for i, name := range ledModeNames {
		if s == name {
			return LEDMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: LED mode %q", pkg.ErrInvalidParameter, s)
}

// ResetMode is a value written to the reset control register.
type ResetMode uint16

// Reset control values. Other values are accepted and ignored.
const (
	ResetReload       ResetMode = 1   // reload stored configuration
	ResetReboot       ResetMode = 2   // normal reboot
	ResetBootloader   ResetMode = 3   // reboot into the bootloader
	ResetFactory      ResetMode = 4   // invalidate stored configuration, then reboot
	ResetWatchdogTest ResetMode = 255 // stop servicing the watchdog
)

var resetModeNames = map[ResetMode]string{
	ResetReload:       "config",
	ResetReboot:       "reboot",
	ResetBootloader:   "bootloader",
	ResetFactory:      "factory",
	ResetWatchdogTest: "watchdog",
}

// String returns the mode name.
func (m ResetMode) String() string {
	if name, ok := resetModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ResetMode(%d)", uint16(m))
}

// ParseResetMode parses one of config, reboot, bootloader, or factory.
func ParseResetMode(s string) (ResetMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range resetModeNames {
		if name == s && m != ResetWatchdogTest {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: reset mode %q", pkg.ErrInvalidParameter, s)
}

// ConfigCommit is the config control value that persists the live
// configuration. Other values are accepted and ignored.
const ConfigCommit uint16 = 1
