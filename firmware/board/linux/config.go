package linux

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Config selects the board resources.
type Config struct {
	// GPIOChip is the GPIO character device, e.g. "gpiochip0".
	GPIOChip string

	// TachLines name the tachometer input lines by line name or offset.
	// An empty name leaves the channel without a tachometer.
	TachLines [pwm.NumChannels]string

	// LEDLine names the status LED output line. Empty disables the LED.
	LEDLine string

	// LEDActiveLow inverts the LED output.
	LEDActiveLow bool

	// PWMChip is the sysfs PWM chip directory, e.g.
	// "/sys/class/pwm/pwmchip0".
	PWMChip string

	// PWMChannels are the chip channels driving each fan.
	PWMChannels [pwm.NumChannels]int
}

// DefaultConfig matches a Raspberry Pi with the pwm-2chan overlay: fans on
// PWM0/PWM1 (GPIO18/GPIO19), tachometers on GPIO23/GPIO24 and the LED on
// GPIO25.
func DefaultConfig() Config {
	return Config{
		GPIOChip:    "gpiochip0",
		TachLines:   [pwm.NumChannels]string{"GPIO23", "GPIO24"},
		LEDLine:     "GPIO25",
		PWMChip:     "/sys/class/pwm/pwmchip0",
		PWMChannels: [pwm.NumChannels]int{0, 1},
	}
}

// Validate checks that the configuration names a PWM chip and distinct
// channels.
func (c Config) Validate() error {
	if c.PWMChip == "" {
		return fmt.Errorf("%w: no PWM chip", pkg.ErrInvalidParameter)
	}
	if c.PWMChannels[0] == c.PWMChannels[1] {
		return fmt.Errorf("%w: both fans on PWM channel %d", pkg.ErrInvalidParameter, c.PWMChannels[0])
	}
	for ch, n := range c.PWMChannels {
		if n < 0 {
			return fmt.Errorf("%w: fan %d PWM channel %d", pkg.ErrInvalidParameter, ch, n)
		}
	}
	return nil
}

// cyclesToNS converts PWM timer cycles to nanoseconds.
func cyclesToNS(cycles uint32) uint64 {
	return uint64(cycles) * uint64(time.Second) / uint64(regmap.ClockFrequency/physic.Hertz)
}

// MachineIDPath is read by MachineID.
var MachineIDPath = "/etc/machine-id"

// MachineID returns the host's machine ID as bytes, suitable as the unit
// ID a short name derives from.
func MachineID() ([]byte, error) {
	b, err := os.ReadFile(MachineIDPath)
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}
	id, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}
	return id, nil
}
