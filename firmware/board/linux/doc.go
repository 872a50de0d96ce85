// Package linux runs the fan controller firmware on a Linux single-board
// computer.
//
// The PWM timer is a sysfs PWM chip (/sys/class/pwm), one channel per fan.
// Tachometer inputs and the status LED are GPIO lines requested through the
// GPIO character device. Settings persist in a file (see store.OpenFile).
//
// The sysfs PWM interface has no period interrupt, so [Board.Run] polls the
// armed state and calls the engine's rollover handler from its own
// goroutine, the same contract the timer interrupt has on a
// microcontroller.
package linux
