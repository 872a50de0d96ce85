//go:build linux

package linux

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbfan/pkg"
)

// classify maps a usbfs errno onto the package sentinels. Removal errors
// wrap both pkg.ErrDeviceRemoved and the errno.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case unix.ENODEV, unix.ESHUTDOWN:
		return fmt.Errorf("%w: %w", pkg.ErrDeviceRemoved, err)
	case unix.EPIPE:
		return fmt.Errorf("%w: %w", pkg.ErrStall, err)
	case unix.ETIMEDOUT:
		return fmt.Errorf("%w: %w", pkg.ErrTimeout, err)
	}
	return err
}
