package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	bugst "go.bug.st/serial"

	devloop "github.com/ardnew/usbfan/device/hal/loop"
	"github.com/ardnew/usbfan/firmware/board/sim"
	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/host"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/host/hal/fifo"
	"github.com/ardnew/usbfan/host/hal/linux"
	"github.com/ardnew/usbfan/host/hal/loop"
	"github.com/ardnew/usbfan/host/serial"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/pkg/config"
)

// backend is an opened transport. transport is nil over a serial console.
type backend struct {
	transport  hal.Transport
	capability uuid.UUID
	usb        *linux.Transport
	closers    []func() error
}

func openBackend(ctx context.Context, o *options) (*backend, error) {
	h := o.cfg.Host
	b := &backend{capability: h.CapabilityUUID(host.DefaultCapability)}
	switch h.Transport {
	case config.TransportUSB:
		t := linux.New()
		t.SetTimeout(h.Timeout)
		b.usb = t
		b.transport = t
	case config.TransportSim:
		t, err := b.startSim(ctx, h)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.transport = t
	case config.TransportFIFO:
		t := fifo.New(h.FIFODir)
		t.SetTimeout(h.Timeout)
		b.transport = t
	}
	return b, nil
}

// startSim attaches the configured simulated units to a fresh bus.
func (b *backend) startSim(ctx context.Context, h config.Host) (*loop.Transport, error) {
	bus := devloop.NewBus()
	for i, u := range h.Sim.Units {
		cfg := sim.Config{Name: u.Name, UID: u.Bytes()}
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("sim%d", i)
		}
		if u.MaxRPM > 0 {
			for ch := range pwm.NumChannels {
				cfg.MaxRPM[ch] = u.MaxRPM
			}
		}
		if u.NVMFile != "" {
			nvm, err := store.OpenFile(u.NVMFile, sim.NVMSize)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", cfg.Name, err)
			}
			b.closers = append(b.closers, nvm.Close)
			cfg.NVM = nvm
		}
		unit := sim.NewUnit(bus, cfg)
		if err := unit.Start(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}
		b.closers = append(b.closers, unit.Stop)
		pkg.LogDebug(pkg.ComponentCLI, "simulated unit started", "port", cfg.Name, "serial", unit.ShortName())
	}
	t := loop.New(bus)
	t.SetTimeout(h.Timeout)
	return t, nil
}

// Close releases everything the backend opened, last first.
func (b *backend) Close() {
	for _, c := range slices.Backward(b.closers) {
		if err := c(); err != nil {
			pkg.LogDebug(pkg.ComponentCLI, "close failed", "error", err)
		}
	}
	b.closers = nil
}

// candidates lists the fans selected by -index.
func (b *backend) candidates(o *options) ([]hal.Candidate, error) {
	all := slices.Collect(host.Discover(b.transport, b.capability))
	if o.index >= 0 {
		if o.index >= len(all) {
			return nil, fmt.Errorf("no USB fan device at index %d: %w", o.index, pkg.ErrDeviceAbsent)
		}
		all = all[o.index : o.index+1]
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no USB fan device found: %w", pkg.ErrDeviceAbsent)
	}
	return all, nil
}

// target is one fan a command runs on.
type target struct {
	label   string
	fan     *host.Fan
	session *host.Session // nil over a serial console
	close   func() error
}

// targets opens every selected fan.
func (b *backend) targets(o *options) ([]*target, error) {
	h := o.cfg.Host
	if b.transport == nil {
		c, err := serial.OpenMode(h.Serial.Port, &bugst.Mode{BaudRate: h.Serial.Baud}, h.Timeout)
		if err != nil {
			return nil, err
		}
		return []*target{{label: c.Name(), fan: host.NewFan(c), close: c.Close}}, nil
	}

	cands, err := b.candidates(o)
	if err != nil {
		return nil, err
	}
	var ts []*target
	for _, c := range cands {
		s, err := host.NewSession(b.transport, c, b.capability)
		if err != nil {
			closeTargets(ts)
			return nil, fmt.Errorf("%s: %w", c.Path, err)
		}
		ts = append(ts, &target{label: formatRow(c), fan: host.NewFan(s), session: s, close: s.Close})
	}
	return ts, nil
}

func closeTargets(ts []*target) {
	for _, t := range ts {
		if err := t.close(); err != nil {
			pkg.LogDebug(pkg.ComponentCLI, "close failed", "target", t.label, "error", err)
		}
	}
}

// header labels the columns of formatRow.
var header = fmt.Sprintf(" VID  PID IF %-20s IfVer SerialNumber", "Path")

func formatRow(c hal.Candidate) string {
	return fmt.Sprintf("%04x:%04x %02x %-20s %5s %s",
		c.VendorID, c.ProductID, c.Interface, c.Path, c.Version, c.Serial)
}
