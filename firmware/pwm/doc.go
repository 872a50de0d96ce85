// Package pwm implements the fan controller's real-time engine: two PWM
// outputs sharing one timer period, and two tachometer pulse-capture rings.
//
// The engine is written against a small hardware surface ([Timer] and
// [Clock]) and a [sync.Locker] standing in for interrupt masking. Board code
// calls [Engine.Edge] from the tachometer edge interrupt and
// [Engine.Rollover] from the timer period interrupt; everything else is
// foreground code.
//
// # Staged output changes
//
// A channel's compare value is double-buffered by the timer and may be
// written at any time, but its output-enable bit is not. Enabling or
// disabling a channel therefore stages the new enable set and arms a
// one-shot rollover interrupt which applies it at the period boundary, so
// no period is ever cut short or stretched.
//
// # Speed
//
// Each capture ring holds the last [RingSize] edge timestamps. The delta
// between the newest entry and the one it replaced spans RingSize pulses,
// which at [PulsesPerRevolution] is RingSize/2 revolutions.
package pwm
