// Package fifo is a host transport over the named-pipe bus of
// [github.com/ardnew/usbfan/device/hal/fifo].
//
// A bus is a directory. Every device-* subdirectory with a connection
// marker is a candidate. A Handle is bound to the marker token it saw when
// it opened; once the marker is gone or carries another token, transfers
// fail with pkg.ErrDeviceRemoved and the caller has to enumerate again.
//
// The bus does not announce changes, so Transport is not a hal.Notifier.
package fifo
