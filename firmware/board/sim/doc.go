// Package sim is a simulated controller board.
//
// [Board] provides the hardware the firmware packages expect: a PWM
// [Timer] whose rollover fires from a background goroutine, a microsecond
// [Clock], tachometer signals from simulated fans whose speed follows the
// PWM duty, and a status [LED].
//
// [Unit] is a complete simulated fan controller. It boots the firmware on
// a Board, serves it on a port of a loop.Bus, and implements the reboot
// resets by unplugging, rebuilding the firmware from its settings store
// and plugging back in, the way a real unit drops off the bus and
// re-enumerates.
//
//	bus := loop.NewBus()
//	unit := sim.NewUnit(bus, sim.Config{Name: "fan0"})
//	if err := unit.Start(ctx); err != nil {
//	    return err
//	}
//	defer unit.Stop()
package sim
