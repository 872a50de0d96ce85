package device

import (
	"context"
	"errors"
	"sync"

	"github.com/ardnew/usbfan/device/hal"
	"github.com/ardnew/usbfan/pkg"
)

// MaxControlDataSize is the maximum data size for control transfers.
const MaxControlDataSize = 512

// Stack runs the control pipe of a device on a HAL.
type Stack struct {
	device  *Device
	hal     hal.DeviceHAL
	handler *StandardRequestHandler

	// State
	running bool
	mutex   sync.RWMutex
	done    chan struct{}

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Reusable setup packet for zero-allocation reads
	setupBuf hal.SetupPacket

	// EP0 read buffer for control OUT data stage
	ep0ReadBuf [MaxControlDataSize]byte
}

// NewStack creates a new device stack.
func NewStack(dev *Device, h hal.DeviceHAL) *Stack {
	return &Stack{
		device:  dev,
		hal:     h,
		handler: NewStandardRequestHandler(dev),
	}
}

// Start attaches the device and serves control transfers until Stop or
// until ctx is cancelled.
func (s *Stack) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mutex.Unlock()

	if err := s.hal.Init(s.ctx); err != nil {
		s.cancel()
		return err
	}

	s.device.Reset()
	if err := s.hal.Start(); err != nil {
		s.cancel()
		return err
	}

	s.mutex.Lock()
	s.running = true
	s.done = make(chan struct{})
	s.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentStack, "device stack started")

	go s.controlLoop(s.done)

	return nil
}

// Stop detaches the device and waits for the control loop to exit.
func (s *Stack) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	err := s.hal.Stop()
	<-done

	pkg.LogDebug(pkg.ComponentStack, "device stack stopped")
	return err
}

// IsRunning returns true if the stack is running.
func (s *Stack) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Device returns the underlying device.
func (s *Stack) Device() *Device {
	return s.device
}

// IsConnected returns true if the device is connected to a host.
func (s *Stack) IsConnected() bool {
	return s.hal.IsConnected()
}

// controlLoop handles control transfers on EP0.
func (s *Stack) controlLoop(done chan<- struct{}) {
	defer close(done)

	for s.ctx.Err() == nil {
		if err := s.hal.ReadSetup(s.ctx, &s.setupBuf); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, pkg.ErrReset) {
				s.device.Reset()
				continue
			}
			pkg.LogWarn(pkg.ComponentStack, "error reading setup",
				"error", err)
			continue
		}

		setup := s.setupBuf
		if err := s.handleSetup(&setup); err != nil {
			pkg.LogDebug(pkg.ComponentStack, "request stalled",
				"error", err,
				"request", setup.String())
			if err := s.hal.StallEP0(); err != nil {
				pkg.LogWarn(pkg.ComponentStack, "error stalling EP0",
					"error", err)
			}
		}
	}
}

// handleSetup processes a single control transfer.
func (s *Stack) handleSetup(setup *SetupPacket) error {
	pkg.LogDebug(pkg.ComponentStack, "setup received",
		"request", setup.String())

	var data []byte
	if !setup.IsDeviceToHost() && setup.Length > 0 {
		n, err := s.hal.ReadEP0(s.ctx, s.ep0ReadBuf[:min(int(setup.Length), MaxControlDataSize)])
		if err != nil {
			return err
		}
		data = s.ep0ReadBuf[:n]
	}

	resp, err := s.dispatch(setup, data)
	if err != nil {
		return err
	}
	if err := s.completeSetup(setup, resp); err != nil {
		return err
	}

	if setup.IsStandard() && setup.IsDeviceRecipient() && setup.Request == RequestSetAddress {
		return s.hal.SetAddress(s.device.Address())
	}
	return nil
}

// dispatch routes a request to the standard handler or a class driver.
func (s *Stack) dispatch(setup *SetupPacket, data []byte) ([]byte, error) {
	if setup.IsStandard() {
		return s.handler.HandleSetup(setup, data)
	}

	var ifaces []*Interface
	switch {
	case setup.IsInterfaceRecipient():
		for _, iface := range s.device.requestInterfaces() {
			if iface.Number == setup.InterfaceNumber() {
				ifaces = append(ifaces, iface)
			}
		}
	case setup.IsDeviceRecipient():
		ifaces = s.device.requestInterfaces()
	}

	for _, iface := range ifaces {
		resp, handled, err := iface.HandleSetup(setup, data)
		if handled {
			return resp, err
		}
	}
	return nil, pkg.ErrInvalidRequest
}

// completeSetup completes the control transfer.
func (s *Stack) completeSetup(setup *SetupPacket, data []byte) error {
	if setup.IsDeviceToHost() {
		if len(data) > int(setup.Length) {
			data = data[:setup.Length]
		}
		if len(data) > 0 {
			if err := s.hal.WriteEP0(s.ctx, data); err != nil {
				return err
			}
		}
		// Read status stage (zero-length OUT)
		_, err := s.hal.ReadEP0(s.ctx, s.ep0ReadBuf[:0])
		return err
	}
	return s.hal.AckEP0()
}
