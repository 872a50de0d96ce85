package device

import (
	"sync"

	"github.com/ardnew/usbfan/pkg"
)

// Interface represents a USB interface within a configuration. Interfaces
// of this stack use only the default control pipe.
type Interface struct {
	// Descriptor data
	Number           uint8 // Interface number
	AlternateSetting uint8 // Current alternate setting
	Class            uint8 // Interface class
	SubClass         uint8 // Interface subclass
	Protocol         uint8 // Interface protocol
	StringIndex      uint8 // String descriptor index

	mutex       sync.RWMutex
	classDriver ClassDriver
}

// ClassDriver handles the class and vendor requests of an interface.
type ClassDriver interface {
	// Init initializes the class driver for the interface.
	Init(iface *Interface) error

	// HandleSetup processes a class or vendor SETUP request addressed to
	// iface, or to the device. data holds the OUT data stage. It returns
	// the IN data stage and whether the request was handled.
	HandleSetup(iface *Interface, setup *SetupPacket, data []byte) ([]byte, bool, error)

	// Close releases any resources held by the class driver.
	Close() error
}

// NewInterface creates a new interface from a descriptor.
func NewInterface(desc *InterfaceDescriptor) *Interface {
	return &Interface{
		Number:           desc.InterfaceNumber,
		AlternateSetting: desc.AlternateSetting,
		Class:            desc.InterfaceClass,
		SubClass:         desc.InterfaceSubClass,
		Protocol:         desc.InterfaceProtocol,
		StringIndex:      desc.InterfaceIndex,
	}
}

// SetClassDriver sets the class driver for this interface.
func (i *Interface) SetClassDriver(driver ClassDriver) error {
	i.mutex.Lock()
	oldDriver := i.classDriver
	i.classDriver = driver
	i.mutex.Unlock()

	// Close old driver outside the lock
	if oldDriver != nil {
		if err := oldDriver.Close(); err != nil {
			pkg.LogWarn(pkg.ComponentDevice, "error closing previous class driver",
				"error", err)
		}
	}

	if driver != nil {
		return driver.Init(i)
	}
	return nil
}

// ClassDriver returns the current class driver.
func (i *Interface) ClassDriver() ClassDriver {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.classDriver
}

// HandleSetup passes a class or vendor SETUP request to the class driver.
func (i *Interface) HandleSetup(setup *SetupPacket, data []byte) ([]byte, bool, error) {
	driver := i.ClassDriver()
	if driver == nil {
		return nil, false, nil
	}
	return driver.HandleSetup(i, setup, data)
}

// Descriptor returns the interface descriptor.
func (i *Interface) Descriptor() *InterfaceDescriptor {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return &InterfaceDescriptor{
		Length:            InterfaceDescriptorSize,
		DescriptorType:    DescriptorTypeInterface,
		InterfaceNumber:   i.Number,
		AlternateSetting:  i.AlternateSetting,
		InterfaceClass:    i.Class,
		InterfaceSubClass: i.SubClass,
		InterfaceProtocol: i.Protocol,
		InterfaceIndex:    i.StringIndex,
	}
}

// Close releases resources held by the interface.
func (i *Interface) Close() error {
	i.mutex.Lock()
	driver := i.classDriver
	i.classDriver = nil
	i.mutex.Unlock()

	if driver != nil {
		return driver.Close()
	}
	return nil
}

// Configuration is one selectable configuration and its interfaces.
type Configuration struct {
	Value       uint8 // bConfigurationValue
	Attributes  uint8
	MaxPower    uint8 // 2 mA units
	StringIndex uint8

	mutex  sync.RWMutex
	ifaces []*Interface
}

// NewConfiguration returns a bus-powered configuration drawing 100 mA.
func NewConfiguration(value uint8) *Configuration {
	return &Configuration{
		Value:      value,
		Attributes: ConfigAttrBusPowered,
		MaxPower:   50,
	}
}

// AddInterface appends iface. Interface numbers must be unique.
func (c *Configuration) AddInterface(iface *Interface) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.ifaces) >= MaxInterfacesPerConfiguration || c.find(iface.Number) != nil {
		return pkg.ErrInvalidParameter
	}
	c.ifaces = append(c.ifaces, iface)
	return nil
}

func (c *Configuration) find(number uint8) *Interface {
	for _, i := range c.ifaces {
		if i.Number == number {
			return i
		}
	}
	return nil
}

// GetInterface returns interface number, or nil.
func (c *Configuration) GetInterface(number uint8) *Interface {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.find(number)
}

// Interfaces returns a copy of the interface list.
func (c *Configuration) Interfaces() []*Interface {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]*Interface(nil), c.ifaces...)
}

// NumInterfaces returns the number of interfaces.
func (c *Configuration) NumInterfaces() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.ifaces)
}

// Descriptor returns the configuration descriptor header.
func (c *Configuration) Descriptor() *ConfigurationDescriptor {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.header()
}

func (c *Configuration) header() *ConfigurationDescriptor {
	n := len(c.ifaces)
	return &ConfigurationDescriptor{
		Length:             ConfigurationDescriptorSize,
		DescriptorType:     DescriptorTypeConfiguration,
		TotalLength:        uint16(ConfigurationDescriptorSize + n*InterfaceDescriptorSize),
		NumInterfaces:      uint8(n),
		ConfigurationValue: c.Value,
		ConfigurationIndex: c.StringIndex,
		Attributes:         c.Attributes,
		MaxPower:           c.MaxPower,
	}
}

// MarshalTo writes the configuration descriptor followed by every
// interface descriptor. It returns 0 when buf is too small.
func (c *Configuration) MarshalTo(buf []byte) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	off := c.header().MarshalTo(buf)
	if off == 0 {
		return 0
	}
	for _, i := range c.ifaces {
		n := i.Descriptor().MarshalTo(buf[off:])
		if n == 0 {
			return 0
		}
		off += n
	}
	return off
}

// IsSelfPowered reports the self-powered attribute.
func (c *Configuration) IsSelfPowered() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.Attributes&ConfigAttrSelfPowered != 0
}

// Close closes the class driver of every interface.
func (c *Configuration) Close() error {
	c.mutex.Lock()
	ifaces := c.ifaces
	c.ifaces = nil
	c.mutex.Unlock()

	var err error
	for _, i := range ifaces {
		if ierr := i.Close(); ierr != nil {
			err = ierr
		}
	}
	return err
}
