//go:build !linux

package linux

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/pkg"
)

// Transport is unavailable off Linux: it finds no devices and opens none.
type Transport struct {
	SysfsRoot string
	DevfsRoot string
}

// New returns an inert transport.
func New() *Transport { return &Transport{} }

// SetTimeout is a no-op.
func (*Transport) SetTimeout(time.Duration) {}

// Changed never fires.
func (*Transport) Changed() <-chan struct{} { return nil }

// Enumerate yields nothing.
func (*Transport) Enumerate(uuid.UUID) iter.Seq[hal.Candidate] {
	return func(func(hal.Candidate) bool) {}
}

// Open returns pkg.ErrNotSupported.
func (*Transport) Open(hal.Candidate) (hal.Handle, error) { return nil, pkg.ErrNotSupported }

// WatchHotplug returns pkg.ErrNotSupported.
func (*Transport) WatchHotplug(context.Context) error { return pkg.ErrNotSupported }
