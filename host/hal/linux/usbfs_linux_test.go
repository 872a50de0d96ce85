//go:build linux && (amd64 || arm64 || 386 || arm || riscv64)

package linux

import (
	"testing"
	"unsafe"
)

func TestIoctlNumbers(t *testing.T) {
	// From <linux/usbdevice_fs.h>; the control struct ends in a pointer.
	want := uintptr(0xc0185500)
	if unsafe.Sizeof(uintptr(0)) == 4 {
		want = 0xc0105500
	}
	if usbdevfsControl != want {
		t.Errorf("USBDEVFS_CONTROL = %#x, want %#x", usbdevfsControl, want)
	}
	if want := uintptr(0x8004550f); usbdevfsClaimInterface != want {
		t.Errorf("USBDEVFS_CLAIMINTERFACE = %#x, want %#x", usbdevfsClaimInterface, want)
	}
}
