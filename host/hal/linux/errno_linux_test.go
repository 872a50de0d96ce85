//go:build linux

package linux

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbfan/pkg"
)

func TestClassify(t *testing.T) {
	other := errors.New("other")
	tests := []struct {
		name    string
		err     error
		want    error
		removal bool
	}{
		{"nil", nil, nil, false},
		{"ENODEV", unix.ENODEV, pkg.ErrDeviceRemoved, true},
		{"ESHUTDOWN", unix.ESHUTDOWN, pkg.ErrDeviceRemoved, true},
		{"wrapped ENODEV", fmt.Errorf("ioctl: %w", unix.ENODEV), pkg.ErrDeviceRemoved, true},
		{"EPIPE", unix.EPIPE, pkg.ErrStall, false},
		{"ETIMEDOUT", unix.ETIMEDOUT, pkg.ErrTimeout, false},
		{"EACCES", unix.EACCES, unix.EACCES, false},
		{"not errno", other, other, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if pkg.IsRemoval(got) != tt.removal {
				t.Errorf("IsRemoval(classify(%v)) = %v, want %v", tt.err, pkg.IsRemoval(got), tt.removal)
			}
			if tt.err != nil && !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) = %v, lost the original error", tt.err, got)
			}
		})
	}
}
