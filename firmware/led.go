package firmware

import "github.com/ardnew/usbfan/regmap"

// LED is the status indicator output.
type LED interface {
	Set(on bool)
}

// Blink timing and the grace period a stall must persist for in auto mode,
// in milliseconds.
const (
	BlinkOffTime   = 140
	BlinkOnTime    = 10
	StallGraceTime = 1000
)

// Indicator drives the status LED from the LED mode and the stall state.
// In auto mode it blinks once a stall has lasted StallGraceTime and is off
// otherwise.
type Indicator struct {
	led LED

	lit, known bool
	blinkOn    bool
	nextBlink  uint32

	stalling   bool
	stallStart uint32
}

// NewIndicator returns an indicator driving led.
func NewIndicator(led LED) *Indicator {
	return &Indicator{led: led}
}

// Update advances the indicator to time now, a wrapping millisecond count.
func (ind *Indicator) Update(now uint32, mode regmap.LEDMode, stalled bool) {
	if mode == regmap.LEDAuto {
		mode = regmap.LEDOff
		if ind.stallFor(now, stalled) {
			mode = regmap.LEDBlink
		}
	}

	switch mode {
	case regmap.LEDOn:
		ind.set(true)
	case regmap.LEDOff:
		ind.set(false)
	case regmap.LEDBlink:
		if int32(now-ind.nextBlink) <= 0 {
			return
		}
		hold := uint32(BlinkOnTime)
		if ind.blinkOn {
			hold = BlinkOffTime
		}
		ind.blinkOn = !ind.blinkOn
		ind.nextBlink += hold
		if int32(now-ind.nextBlink) > 0 {
			ind.nextBlink = now + hold
		}
		ind.set(ind.blinkOn)
	}
}

// stallFor tracks how long stalled has been continuously true and reports
// whether that exceeds the grace period.
func (ind *Indicator) stallFor(now uint32, stalled bool) bool {
	if !stalled {
		ind.stalling = false
		return false
	}
	if !ind.stalling {
		ind.stalling = true
		ind.stallStart = now
	}
	return now-ind.stallStart > StallGraceTime
}

func (ind *Indicator) set(on bool) {
	if ind.known && ind.lit == on {
		return
	}
	ind.lit, ind.known = on, true
	ind.led.Set(on)
}
