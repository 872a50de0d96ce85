// Package fifo implements a USB device HAL over named pipes, so a device
// stack in one process can be reached by a host in another.
//
// Each device attaches under a shared bus directory in a subdirectory of
// its own:
//
//	/tmp/usbfan-bus/
//	└── device-{uuid}/
//	    ├── connection       # present while attached; holds a token per attachment
//	    ├── host_to_device   # SETUP packets and OUT data stages
//	    └── device_to_host   # IN data stages, acks and stalls
//
// Only the default control pipe is carried. A transfer is a [MsgSetup]
// message, followed by a [MsgData] message when it has an OUT data stage,
// and answered by exactly one of [MsgData], [MsgAck] or [MsgStall].
//
// The connection token changes every time the device attaches, so a host
// holding FIFOs from an earlier attachment can tell that the device it
// opened went away even if the directory has come back.
//
// The host side is [github.com/ardnew/usbfan/host/hal/fifo].
package fifo
