package device

import (
	"sync"

	"github.com/ardnew/usbfan/pkg"
)

// Device is the device-side model of one USB function: its descriptors,
// string table, configurations and chapter 9 state.
type Device struct {
	Descriptor *DeviceDescriptor

	mutex   sync.RWMutex
	configs []*Configuration
	active  *Configuration
	strtab  [][]byte // encoded string descriptors by index
	bos     []byte

	state   State
	address uint8
	wakeup  bool
	watch   func(from, to State)
}

// NewDevice returns a device in the attached state.
func NewDevice(desc *DeviceDescriptor) *Device {
	return &Device{Descriptor: desc, state: StateAttached}
}

// AddConfiguration appends config. Configuration values must be unique.
func (d *Device) AddConfiguration(config *Configuration) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.configs) >= MaxConfigurations || d.lookup(config.Value) != nil {
		return pkg.ErrInvalidParameter
	}
	d.configs = append(d.configs, config)
	d.Descriptor.NumConfigurations = uint8(len(d.configs))

	pkg.LogDebug(pkg.ComponentDevice, "configuration added", "value", config.Value)
	return nil
}

// lookup finds a configuration by bConfigurationValue. Callers hold mutex.
func (d *Device) lookup(value uint8) *Configuration {
	for _, c := range d.configs {
		if c.Value == value {
			return c
		}
	}
	return nil
}

// GetConfiguration returns the configuration with the given value.
func (d *Device) GetConfiguration(value uint8) *Configuration {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.lookup(value)
}

func (d *Device) configurationAt(idx uint8) *Configuration {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if int(idx) >= len(d.configs) {
		return nil
	}
	return d.configs[idx]
}

// ActiveConfiguration returns the selected configuration, or nil.
func (d *Device) ActiveConfiguration() *Configuration {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.active
}

// SetString encodes s as string descriptor index.
func (d *Device) SetString(index uint8, s string) error {
	var buf [2 + 2*126]byte
	n := StringDescriptorTo(buf[:], s)
	if n == 0 {
		return pkg.ErrInvalidParameter
	}
	return d.putString(index, append([]byte(nil), buf[:n]...))
}

// SetLanguages sets string descriptor zero.
func (d *Device) SetLanguages(langIDs ...uint16) error {
	buf := make([]byte, 2+2*len(langIDs))
	n := LanguageDescriptorTo(buf, langIDs...)
	if n == 0 {
		return pkg.ErrInvalidParameter
	}
	return d.putString(0, buf[:n])
}

func (d *Device) putString(index uint8, desc []byte) error {
	if index >= MaxStrings {
		return pkg.ErrInvalidParameter
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if int(index) >= len(d.strtab) {
		d.strtab = append(d.strtab, make([][]byte, int(index)+1-len(d.strtab))...)
	}
	d.strtab[index] = desc
	return nil
}

// GetString returns the encoded string descriptor at index, or nil.
func (d *Device) GetString(index uint8) []byte {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if int(index) >= len(d.strtab) {
		return nil
	}
	return d.strtab[index]
}

// SetBOS stores the binary device object store by reference.
func (d *Device) SetBOS(bos []byte) {
	d.mutex.Lock()
	d.bos = bos
	d.mutex.Unlock()
}

// BOS returns the binary device object store. Devices reporting bcdUSB
// below 2.01 have none.
func (d *Device) BOS() []byte {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if d.Descriptor.USBVersion < USBVersionBOS {
		return nil
	}
	return d.bos
}

// State returns the chapter 9 device state.
func (d *Device) State() State {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state
}

// IsConfigured reports whether a configuration is selected.
func (d *Device) IsConfigured() bool { return d.State() == StateConfigured }

// Address returns the assigned bus address.
func (d *Device) Address() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.address
}

// OnStateChange registers fn to run after every state transition. fn runs
// without the device lock held.
func (d *Device) OnStateChange(fn func(from, to State)) {
	d.mutex.Lock()
	d.watch = fn
	d.mutex.Unlock()
}

// transition moves to state to. Callers must not hold mutex.
func (d *Device) transition(to State) {
	d.mutex.Lock()
	from := d.state
	d.state = to
	fn := d.watch
	d.mutex.Unlock()

	if from == to {
		return
	}
	pkg.LogDebug(pkg.ComponentDevice, "device state changed", "from", from, "to", to)
	if fn != nil {
		fn(from, to)
	}
}

// Reset returns the device to the default state after a bus reset.
func (d *Device) Reset() {
	d.mutex.Lock()
	d.address, d.active, d.wakeup = 0, nil, false
	d.mutex.Unlock()
	d.transition(StateDefault)
}

// SetAddress applies SET_ADDRESS. Address zero returns to the default state.
func (d *Device) SetAddress(address uint8) error {
	d.mutex.Lock()
	if d.state != StateDefault && d.state != StateAddress {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	d.address = address
	d.mutex.Unlock()

	next := StateAddress
	if address == 0 {
		next = StateDefault
	}
	d.transition(next)
	pkg.LogDebug(pkg.ComponentDevice, "device address set", "address", address)
	return nil
}

// SetConfiguration applies SET_CONFIGURATION. Value zero deconfigures.
func (d *Device) SetConfiguration(value uint8) error {
	d.mutex.Lock()
	if d.state != StateAddress && d.state != StateConfigured {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	var next *Configuration
	if value != 0 {
		if next = d.lookup(value); next == nil {
			d.mutex.Unlock()
			return pkg.ErrInvalidRequest
		}
	}
	d.active = next
	d.mutex.Unlock()

	if next == nil {
		d.transition(StateAddress)
		return nil
	}
	d.transition(StateConfigured)
	pkg.LogDebug(pkg.ComponentDevice, "device configured", "configuration", value)
	return nil
}

// EnableRemoteWakeup records the DEVICE_REMOTE_WAKEUP feature.
func (d *Device) EnableRemoteWakeup(enabled bool) {
	d.mutex.Lock()
	d.wakeup = enabled
	d.mutex.Unlock()
}

// GetInterface returns interface number of the active configuration.
func (d *Device) GetInterface(number uint8) *Interface {
	if c := d.ActiveConfiguration(); c != nil {
		return c.GetInterface(number)
	}
	return nil
}

// requestInterfaces lists the interfaces offered device-recipient vendor
// requests. Before configuration that is the first configuration, so a
// host can probe the fan without selecting one.
func (d *Device) requestInterfaces() []*Interface {
	c := d.ActiveConfiguration()
	if c == nil {
		c = d.configurationAt(0)
	}
	if c == nil {
		return nil
	}
	return c.Interfaces()
}

// Close closes every configuration's class drivers.
func (d *Device) Close() error {
	d.mutex.Lock()
	configs := d.configs
	d.configs, d.active = nil, nil
	d.mutex.Unlock()

	var err error
	for _, c := range configs {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// DeviceStatus is the GET_STATUS word for the device recipient.
type DeviceStatus uint16

const (
	DeviceStatusSelfPowered  DeviceStatus = 1 << 0
	DeviceStatusRemoteWakeup DeviceStatus = 1 << 1
)

// GetStatus returns the device status word.
func (d *Device) GetStatus() DeviceStatus {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var s DeviceStatus
	if d.active != nil && d.active.IsSelfPowered() {
		s |= DeviceStatusSelfPowered
	}
	if d.wakeup {
		s |= DeviceStatusRemoteWakeup
	}
	return s
}
