//go:build !linux

package linux

import (
	"context"
	"fmt"

	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/pkg"
)

// Board is unavailable on this platform.
type Board struct{}

// Open always fails on this platform.
func Open(cfg Config) (*Board, error) {
	return nil, fmt.Errorf("%w: linux board", pkg.ErrNotSupported)
}

// Timer returns nil.
func (b *Board) Timer() pwm.Timer { return nil }

// Clock returns nil.
func (b *Board) Clock() pwm.Clock { return nil }

// LED returns nil.
func (b *Board) LED() firmware.LED { return nil }

// Run fails.
func (b *Board) Run(ctx context.Context, e *pwm.Engine) error { return pkg.ErrNotSupported }

// Close does nothing.
func (b *Board) Close() error { return nil }
