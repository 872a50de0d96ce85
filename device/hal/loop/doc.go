// Package loop implements an in-process USB bus for device stacks.
//
// A [Bus] holds any number of [Port]s. The device side of a port is a
// [hal.DeviceHAL]; the host side opens a [Conn] on a port and issues
// control transfers through it.
//
// Attaching and detaching work like a cable: [Port.Start] plugs the port
// in and [Port.Stop] pulls it out. A Conn belongs to one attachment, so
// after a replug every Conn opened before it fails with pkg.ErrNoDevice,
// the same way a file descriptor on a removed USB device stays dead after
// the device returns.
//
//	bus := loop.NewBus()
//	port := bus.Attach("fan0")
//	stack := device.NewStack(dev, port)
//	stack.Start(ctx)
//
//	conn, _ := port.Open()
//	n, err := conn.Control(ctx, &setup, buf)
package loop

import "github.com/ardnew/usbfan/device/hal"

var _ hal.DeviceHAL = (*Port)(nil)
