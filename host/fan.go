package host

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Fan is the register protocol of one fan controller, over any Registers.
type Fan struct {
	regs Registers
}

// NewFan returns a Fan using regs.
func NewFan(regs Registers) *Fan {
	return &Fan{regs: regs}
}

// Registers returns the underlying register access.
func (f *Fan) Registers() Registers { return f.regs }

func (f *Fan) read16(a regmap.Address) (uint16, error) {
	b, err := f.regs.ReadRegister(a)
	if err != nil {
		return 0, err
	}
	if len(b) < 2 {
		return 0, fmt.Errorf("read %s: %w", a, pkg.ErrProtocol)
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Version reads the interface version register.
func (f *Fan) Version() (regmap.Version, error) {
	b, err := f.regs.ReadRegister(regmap.AddrVersion)
	if err != nil {
		return regmap.Version{}, err
	}
	return regmap.ParseVersion(b)
}

// ShortName reads the short name register.
func (f *Fan) ShortName() (string, error) {
	b, err := f.regs.ReadRegister(regmap.AddrShortName)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Duty reads the duty register of channel ch.
func (f *Fan) Duty(ch int) (uint16, error) {
	a, err := regmap.DutyRegister(ch)
	if err != nil {
		return 0, err
	}
	return f.read16(a)
}

// SetDuty writes the duty register of channel ch. Zero turns the output
// off.
func (f *Fan) SetDuty(ch int, duty uint16) error {
	a, err := regmap.DutyRegister(ch)
	if err != nil {
		return err
	}
	return f.regs.WriteRegister(a, duty)
}

// Period reads the period register.
func (f *Fan) Period() (uint16, error) {
	return f.read16(regmap.AddrPeriod)
}

// SetPeriod writes the period register.
func (f *Fan) SetPeriod(period uint16) error {
	return f.regs.WriteRegister(regmap.AddrPeriod, period)
}

// SetSpeed sets channel ch to percent of full duty, relative to the
// current period.
func (f *Fan) SetSpeed(ch int, percent float64) error {
	a, err := regmap.DutyRegister(ch)
	if err != nil {
		return err
	}
	period, err := f.Period()
	if err != nil {
		return err
	}
	duty, err := regmap.DutyForPercent(period, percent)
	if err != nil {
		return err
	}
	return f.regs.WriteRegister(a, duty)
}

// Speed returns channel ch's duty as a percentage of the period.
func (f *Fan) Speed(ch int) (float64, error) {
	duty, err := f.Duty(ch)
	if err != nil {
		return 0, err
	}
	period, err := f.Period()
	if err != nil {
		return 0, err
	}
	return regmap.PercentForDuty(period, duty), nil
}

// RPM reads the tachometer of channel ch.
func (f *Fan) RPM(ch int) (uint16, error) {
	a, err := regmap.TachRegister(ch)
	if err != nil {
		return 0, err
	}
	return f.read16(a)
}

// Frequency returns the PWM frequency.
func (f *Fan) Frequency() (physic.Frequency, error) {
	period, err := f.Period()
	if err != nil {
		return 0, err
	}
	return regmap.FrequencyForPeriod(period), nil
}

// SetFrequency sets the period closest to frequency freq. Duties are not
// rescaled.
func (f *Fan) SetFrequency(freq physic.Frequency) error {
	period, err := regmap.PeriodForFrequency(freq)
	if err != nil {
		return err
	}
	return f.SetPeriod(period)
}

// LED reads the LED mode.
func (f *Fan) LED() (regmap.LEDMode, error) {
	v, err := f.read16(regmap.AddrLEDControl)
	return regmap.LEDMode(v), err
}

// SetLED sets the LED mode.
func (f *Fan) SetLED(m regmap.LEDMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: LED mode %d", pkg.ErrInvalidParameter, m)
	}
	return f.regs.WriteRegister(regmap.AddrLEDControl, uint16(m))
}

// Save persists the current LED mode, period and duties as power-on
// defaults.
func (f *Fan) Save() error {
	return f.regs.WriteRegister(regmap.AddrConfigControl, regmap.ConfigCommit)
}

// Reset writes m to the reset control register. Every mode but
// regmap.ResetReload takes the device off the bus.
func (f *Fan) Reset(m regmap.ResetMode) error {
	return f.regs.WriteRegister(regmap.AddrResetControl, uint16(m))
}
