package firmware

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// System performs the resets a controller cannot do itself. Reset may
// return before the reset takes effect and must not call back into the
// controller before returning.
type System interface {
	Reset(mode regmap.ResetMode) error
}

// Controller is the register dispatcher of one fan controller.
type Controller struct {
	mu sync.Mutex

	engine *pwm.Engine
	store  *store.Store
	system System
	name   [regmap.ShortNameLen]byte

	settings store.Record
}

// New returns a controller. uid holds the factory per-unit bytes the short
// name is derived from. sys may be nil, in which case the reboot resets
// fail with ErrNotSupported.
func New(engine *pwm.Engine, st *store.Store, sys System, uid []byte) *Controller {
	return &Controller{
		engine:   engine,
		store:    st,
		system:   sys,
		name:     ShortName(uid),
		settings: store.Default(),
	}
}

// Begin loads the stored settings, or the defaults if they are invalid,
// and programs the PWM timer from them.
func (c *Controller) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begin()
}

func (c *Controller) begin() {
	rec, ok := c.store.Load()
	c.settings = rec
	c.engine.Begin(rec.Period, rec.Duty)
	pkg.LogInfo(pkg.ComponentFirmware, "controller started",
		"stored", ok, "led", rec.LEDMode, "period", rec.Period,
		"duty0", rec.Duty[0], "duty1", rec.Duty[1])
}

// ShortName returns the unit's short name, also used as its USB serial
// number.
func (c *Controller) ShortName() string {
	return string(c.name[:])
}

// Settings returns the live settings, which may differ from those stored.
func (c *Controller) Settings() store.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// LEDMode returns the configured LED mode.
func (c *Controller) LEDMode() regmap.LEDMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.LEDMode
}

// Stalled reports whether an enabled fan has stopped turning.
func (c *Controller) Stalled() bool {
	return c.engine.Stalled()
}

// ReadRegister copies the value of register addr into buf and returns its
// length. Integer registers are little-endian.
func (c *Controller) ReadRegister(addr regmap.Address, buf []byte) (int, error) {
	reg, ok := regmap.Lookup(addr)
	if !ok || !reg.Direction.CanRead() {
		return 0, fmt.Errorf("%w: read %s", pkg.ErrNotSupported, addr)
	}
	if len(buf) < reg.Width {
		return 0, pkg.ErrBufferTooSmall
	}

	var v uint16
	switch addr {
	case regmap.AddrVersion:
		b := regmap.CurrentVersion.Bytes()
		return copy(buf, b[:]), nil
	case regmap.AddrShortName:
		return copy(buf, c.name[:]), nil
	case regmap.AddrDuty0, regmap.AddrDuty1:
		ch, _ := addr.Channel()
		v = c.engine.Duty(ch)
	case regmap.AddrPeriod:
		v = c.engine.Period()
	case regmap.AddrTach0, regmap.AddrTach1:
		ch, _ := addr.Channel()
		v = c.engine.Speed(ch)
	case regmap.AddrLEDControl:
		v = uint16(c.LEDMode())
	}
	binary.LittleEndian.PutUint16(buf, v)
	return 2, nil
}

// WriteRegister writes value to register addr. Out of range LED modes and
// unknown reset or config commands are accepted and ignored.
func (c *Controller) WriteRegister(addr regmap.Address, value uint16) error {
	reg, ok := regmap.Lookup(addr)
	if !ok || !reg.Direction.CanWrite() {
		return fmt.Errorf("%w: write %s", pkg.ErrNotSupported, addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch addr {
	case regmap.AddrDuty0, regmap.AddrDuty1:
		ch, _ := addr.Channel()
		if err := c.engine.SetDuty(ch, value); err != nil {
			return err
		}
		c.settings.Duty[ch] = value
	case regmap.AddrPeriod:
		c.engine.SetPeriod(value)
		c.settings.Period = value
	case regmap.AddrLEDControl:
		if m := regmap.LEDMode(value); m.Valid() && uint16(m) == value {
			c.settings.LEDMode = m
		}
	case regmap.AddrConfigControl:
		if value == regmap.ConfigCommit {
			return c.store.Commit(c.settings)
		}
	case regmap.AddrResetControl:
		return c.reset(regmap.ResetMode(value))
	}
	return nil
}

func (c *Controller) reset(mode regmap.ResetMode) error {
	switch mode {
	case regmap.ResetReload:
		c.begin()
		return nil
	case regmap.ResetFactory:
		if err := c.store.FactoryReset(); err != nil {
			return err
		}
		mode = regmap.ResetReboot
	case regmap.ResetReboot, regmap.ResetBootloader, regmap.ResetWatchdogTest:
	default:
		return nil
	}
	if c.system == nil {
		return fmt.Errorf("%w: reset %s", pkg.ErrNotSupported, mode)
	}
	pkg.LogInfo(pkg.ComponentFirmware, "reset requested", "mode", mode)
	return c.system.Reset(mode)
}
