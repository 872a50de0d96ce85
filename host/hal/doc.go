// Package hal defines how the host side reaches fan devices.
//
// A [Transport] enumerates attached devices that announce a capability
// UUID in their BOS descriptor and opens them. A [Handle] performs control
// transfers on the default pipe and nothing else: the register protocol
// needs no other endpoint.
//
// Transports differ only in where the bytes go. The descriptor walk that
// turns an open handle into a [Candidate] is shared and lives in [Probe],
// so a transport's Enumerate is typically:
//
//	for each device node {
//	    h, err := open(node)
//	    c, err := hal.Probe(h, capability)
//	    h.Close()
//	    c.Path = node
//	    yield(c)
//	}
//
// # Removal
//
// A transport must recognize the platform error that means "the handle is
// still open but the device no longer answers" and wrap it in
// pkg.ErrDeviceRemoved. The session layer reacquires the device on that
// error and on no other.
//
// Implementations:
//   - [github.com/ardnew/usbfan/host/hal/linux]: usbfs
//   - [github.com/ardnew/usbfan/host/hal/loop]: the in-process bus
//   - [github.com/ardnew/usbfan/host/hal/fifo]: the named-pipe bus
package hal
