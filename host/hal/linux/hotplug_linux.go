//go:build linux

package linux

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbfan/pkg"
)

// WatchHotplug listens for kernel uevents until ctx is done, waking
// [Transport.Changed] whenever a USB device is added or removed. It
// returns once the socket is bound.
func (t *Transport) WatchHotplug(ctx context.Context) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return fmt.Errorf("netlink socket: %w", err)
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netlink bind: %w", err)
	}
	tv := unix.NsecToTimeval(ueventPollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netlink timeout: %w", err)
	}

	pkg.LogDebug(pkg.ComponentTransport, "hotplug watch started")
	go t.readUEvents(ctx, fd)
	return nil
}

func (t *Transport) readUEvents(ctx context.Context, fd int) {
	defer unix.Close(fd)
	buf := make([]byte, ueventBufferSize)
	for ctx.Err() == nil {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			pkg.LogWarn(pkg.ComponentTransport, "hotplug watch stopped", "error", err)
			return
		}
		e := parseUEvent(buf[:n])
		if !e.isUSBDevice() {
			continue
		}
		pkg.LogDebug(pkg.ComponentTransport, "usb device event",
			"action", e.action, "devpath", e.devpath)
		t.notify()
	}
	pkg.LogDebug(pkg.ComponentTransport, "hotplug watch stopped")
}
