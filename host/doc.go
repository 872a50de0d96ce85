// Package host drives fan controllers from the host side.
//
// Devices are found through a [hal.Transport]: [Discover] yields every
// attached device that announces the fan capability and speaks a
// compatible interface version. A [Session] then holds a logical
// connection to one of them, keyed by its serial number, across unplug and
// replug:
//
//	for c := range host.Discover(transport, host.DefaultCapability) {
//	    s, err := host.NewSession(transport, c, host.DefaultCapability)
//	    ...
//	    fan := host.NewFan(s)
//	    fan.SetSpeed(0, 40)
//	    rpm, err := fan.RPM(0)
//	}
//
// An operation that fails because the device vanished is retried once on
// the reacquired device. When the device is still away the operation fails
// with pkg.ErrDeviceAbsent and the session stays usable; the next
// operation tries again.
//
// [Fan] speaks the register protocol over any [Registers], which a Session
// implements over USB and the serial package implements over the debug
// console. [ControlSensor] and [FanSensor] bind one channel of a Fan for
// consumers that treat outputs and tachometers as sensors, and [Monitor]
// keeps rolling averages of the tachometers.
package host
