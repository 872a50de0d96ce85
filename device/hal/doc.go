// Package hal defines the hardware abstraction a USB device controller
// provides to the device stack.
//
// The fan controller only uses the default control pipe, so [DeviceHAL]
// covers EP0 and the attach state. The stack implements all protocol logic
// and leaves the HAL to move SETUP packets and data stages.
//
// A HAL for a new controller:
//
//  1. delivers each SETUP packet through ReadSetup, and pkg.ErrReset after a
//     bus reset
//  2. sends IN data with WriteEP0, receives OUT data with ReadEP0
//  3. finishes each transfer with AckEP0, StallEP0, or the IN status stage
//     read by ReadEP0 with an empty buffer
//
// An in-process bus HAL for tests and simulation is available in
// [github.com/ardnew/usbfan/device/hal/loop], and a named-pipe HAL that a
// host in another process can reach in
// [github.com/ardnew/usbfan/device/hal/fifo].
package hal
