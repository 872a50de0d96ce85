//go:build linux

package linux

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// ctrlTransfer mirrors struct usbdevfs_ctrltransfer.
type ctrlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32 // milliseconds
	data        unsafe.Pointer
}

var (
	usbdevfsControl        = ioc(iocRead|iocWrite, 'U', 0, unsafe.Sizeof(ctrlTransfer{}))
	usbdevfsClaimInterface = ioc(iocRead, 'U', 15, unsafe.Sizeof(uint32(0)))
)

// openDevice opens a usbfs device node for control transfers.
func openDevice(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

// control performs one USBDEVFS_CONTROL ioctl and returns the number of
// data bytes transferred.
func control(fd int, xfer *ctrlTransfer) (int, error) {
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsControl, uintptr(unsafe.Pointer(xfer)))
	runtime.KeepAlive(xfer)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// claimInterface claims iface for fd.
func claimInterface(fd int, iface uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsClaimInterface, uintptr(unsafe.Pointer(&iface)))
	runtime.KeepAlive(&iface)
	if errno != 0 {
		return errno
	}
	return nil
}
