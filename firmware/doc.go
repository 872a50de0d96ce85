// Package firmware implements the fan controller's register map on top of
// the PWM engine and the settings store.
//
// A [Controller] dispatches register reads and writes. The same dispatcher
// serves the vendor USB interface (see [NewUSBDevice]) and the debug serial
// [Console]. [Run] is the foreground loop that drives the status LED through
// an [Indicator].
//
//	eng := pwm.NewEngine(timer, clock, nil)
//	ctrl := firmware.New(eng, store.New(nvm), sys, uid)
//	ctrl.Begin()
//	dev, err := firmware.NewUSBDevice(ctx, ctrl)
package firmware
