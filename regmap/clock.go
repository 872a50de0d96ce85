package regmap

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/usbfan/pkg"
)

// ClockFrequency is the PWM timer clock. Periods and duties count its cycles.
const ClockFrequency = 16 * physic.MegaHertz

// DefaultPeriod gives a 25 kHz PWM frequency, the value 4-wire fans expect.
const DefaultPeriod uint16 = 640

// periodCycles expands the period register value; 0 encodes 65536 cycles.
func periodCycles(period uint16) int64 {
	if period == 0 {
		return 1 << 16
	}
	return int64(period)
}

// PeriodForFrequency returns the period register value closest to f.
// Frequencies too low to represent saturate at 65536 cycles (register
// value 0).
func PeriodForFrequency(f physic.Frequency) (uint16, error) {
	if f <= 0 || f > ClockFrequency {
		return 0, fmt.Errorf("%w: frequency %s", pkg.ErrInvalidParameter, f)
	}
	cycles := (int64(ClockFrequency) + int64(f)/2) / int64(f)
	if cycles > math.MaxUint16 {
		return 0, nil
	}
	return uint16(cycles), nil
}

// FrequencyForPeriod returns the PWM frequency of a period register value.
func FrequencyForPeriod(period uint16) physic.Frequency {
	return ClockFrequency / physic.Frequency(periodCycles(period))
}

// DutyForPercent converts a percentage of the period into a duty register
// value, rounding to the nearest cycle.
func DutyForPercent(period uint16, percent float64) (uint16, error) {
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return 0, fmt.Errorf("%w: speed %v%%", pkg.ErrInvalidParameter, percent)
	}
	duty := math.Round(float64(periodCycles(period)) * percent / 100)
	if duty > math.MaxUint16 {
		duty = math.MaxUint16
	}
	return uint16(duty), nil
}

// PercentForDuty is the inverse of DutyForPercent.
func PercentForDuty(period, duty uint16) float64 {
	return float64(duty) * 100 / float64(periodCycles(period))
}
