package fan

import (
	"sync"

	"github.com/ardnew/usbfan/device"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Registers is the register file the interface exposes.
type Registers interface {
	ReadRegister(addr regmap.Address, buf []byte) (int, error)
	WriteRegister(addr regmap.Address, value uint16) error
}

// maxRegisterWidth bounds the IN data stage of a register read.
const maxRegisterWidth = regmap.ShortNameLen

// Fan implements device.ClassDriver for the fan register interface.
type Fan struct {
	regs Registers

	mutex sync.RWMutex
	iface *device.Interface
	msos  []byte

	// only touched from the stack's control loop
	responseBuf [maxRegisterWidth]byte
}

// New creates a fan interface driver backed by regs.
func New(regs Registers) *Fan {
	return &Fan{regs: regs}
}

// Init implements device.ClassDriver.
func (f *Fan) Init(iface *device.Interface) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.iface = iface
	f.msos = DescriptorSet(iface.Number, regmap.CapabilityUUID)
	pkg.LogDebug(pkg.ComponentDevice, "fan interface configured",
		"interface", iface.Number,
		"msosLen", len(f.msos))
	return nil
}

// Interface returns the interface f is bound to, or nil.
func (f *Fan) Interface() *device.Interface {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.iface
}

// HandleSetup implements device.ClassDriver.
func (f *Fan) HandleSetup(iface *device.Interface, setup *device.SetupPacket, data []byte) ([]byte, bool, error) {
	if !setup.IsVendor() {
		return nil, false, nil
	}

	switch {
	case setup.IsDeviceRecipient():
		return f.handleDeviceRequest(setup)
	case setup.IsInterfaceRecipient() && setup.Index == uint16(iface.Number):
		return f.handleRegister(setup)
	default:
		return nil, false, nil
	}
}

func (f *Fan) handleDeviceRequest(setup *device.SetupPacket) ([]byte, bool, error) {
	if !setup.IsDeviceToHost() || setup.Request != MSOSVendorCode || setup.Index != MSOSDescriptorIndex {
		return nil, false, nil
	}
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	if f.msos == nil {
		return nil, false, nil
	}
	return f.msos, true, nil
}

func (f *Fan) handleRegister(setup *device.SetupPacket) ([]byte, bool, error) {
	addr := regmap.Address(setup.Request)

	if !setup.IsDeviceToHost() {
		if err := f.regs.WriteRegister(addr, setup.Value); err != nil {
			return nil, true, err
		}
		pkg.LogDebug(pkg.ComponentDevice, "register write",
			"register", addr,
			"value", setup.Value)
		return nil, true, nil
	}

	n, err := f.regs.ReadRegister(addr, f.responseBuf[:])
	if err != nil {
		return nil, true, err
	}
	return f.responseBuf[:n], true, nil
}

// Close implements device.ClassDriver.
func (f *Fan) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.iface = nil
	return nil
}
