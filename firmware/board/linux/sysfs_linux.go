//go:build linux

package linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ardnew/usbfan/firmware/pwm"
	"github.com/ardnew/usbfan/pkg"
)

// sysfs timing. Attributes of a freshly exported channel can take a moment
// to appear and to receive their final permissions.
const (
	exportTimeout = 500 * time.Millisecond
	writeTimeout  = 2 * time.Second
	retryInterval = 25 * time.Millisecond
)

// PWM implements pwm.Timer on two channels of a sysfs PWM chip.
type PWM struct {
	chip     string
	channels [pwm.NumChannels]int

	mu       sync.Mutex
	periodNS uint64
	compare  [pwm.NumChannels]uint16 // in timer cycles, as last set
	compared [pwm.NumChannels]bool
	dutyNS   [pwm.NumChannels]uint64 // as last written
	outputs  pwm.Outputs
	armed    bool
	err      error
}

// OpenPWM exports channels of the sysfs PWM chip at chip, disables their
// outputs and zeroes their duty so that any period can be written next.
func OpenPWM(chip string, channels [pwm.NumChannels]int) (*PWM, error) {
	p := &PWM{chip: chip, channels: channels}
	for ch := range channels {
		if err := p.export(ch); err != nil {
			return nil, err
		}
		if err := p.writeAttr(ch, "enable", "0"); err != nil {
			return nil, err
		}
		if err := p.writeAttr(ch, "duty_cycle", "0"); err != nil {
			return nil, err
		}
	}
	pkg.LogDebug(pkg.ComponentHAL, "sysfs PWM opened", "chip", chip, "channels", channels)
	return p, nil
}

func (p *PWM) channelPath(ch int) string {
	return filepath.Join(p.chip, "pwm"+strconv.Itoa(p.channels[ch]))
}

func (p *PWM) export(ch int) error {
	path := p.channelPath(ch)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := sysfsWrite(filepath.Join(p.chip, "export"), strconv.Itoa(p.channels[ch])); err != nil {
		// exported by someone else in the meantime
		if _, serr := os.Stat(path); serr == nil {
			return nil
		}
		return fmt.Errorf("export PWM channel %d: %w", p.channels[ch], err)
	}
	deadline := time.Now().Add(exportTimeout)
	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("export PWM channel %d: %w", p.channels[ch], err)
		}
		time.Sleep(retryInterval)
	}
}

func (p *PWM) writeAttr(ch int, name, value string) error {
	return sysfsWrite(filepath.Join(p.channelPath(ch), name), value)
}

// record keeps the first write failure. p.mu is held.
func (p *PWM) record(err error) {
	if err == nil {
		return
	}
	pkg.LogWarn(pkg.ComponentHAL, "sysfs PWM write failed", "chip", p.chip, "error", err)
	if p.err == nil {
		p.err = err
	}
}

// SetTop implements pwm.Timer. Each channel's duty is recomputed from its
// compare value, so a duty cut by a short period comes back when the
// period grows again. The kernel rejects a duty longer than the period, so
// a shrinking period is written after the duty and a growing one before.
func (p *PWM) SetTop(top uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.periodNS
	p.periodNS = cyclesToNS(uint32(top) + 1)
	period := strconv.FormatUint(p.periodNS, 10)
	for ch := range p.channels {
		if p.periodNS < prev {
			p.writeDuty(ch, false)
			p.record(p.writeAttr(ch, "period", period))
			continue
		}
		p.record(p.writeAttr(ch, "period", period))
		p.writeDuty(ch, false)
	}
}

// SetCompare implements pwm.Timer.
func (p *PWM) SetCompare(ch int, v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.compare[ch], p.compared[ch] = v, true
	p.writeDuty(ch, true)
}

// writeDuty writes channel ch's duty for the current period and compare
// value, skipping an unchanged value unless always is set. p.mu is held.
func (p *PWM) writeDuty(ch int, always bool) {
	var duty uint64
	if p.compared[ch] {
		duty = min(cyclesToNS(uint32(p.compare[ch])+1), p.periodNS)
	}
	if duty == p.dutyNS[ch] && !always {
		return
	}
	p.dutyNS[ch] = duty
	p.record(p.writeAttr(ch, "duty_cycle", strconv.FormatUint(duty, 10)))
}

// SetOutputs implements pwm.Timer.
func (p *PWM) SetOutputs(o pwm.Outputs) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.channels {
		on := o.Enabled(ch)
		if on == p.outputs.Enabled(ch) {
			continue
		}
		v := "0"
		if on {
			v = "1"
		}
		p.record(p.writeAttr(ch, "enable", v))
	}
	p.outputs = o
}

// ResetCounter implements pwm.Timer. Writing the period already restarts
// it on sysfs PWM chips.
func (p *PWM) ResetCounter() {}

// EnableRollover implements pwm.Timer.
func (p *PWM) EnableRollover(on bool) {
	p.mu.Lock()
	p.armed = on
	p.mu.Unlock()
}

// Armed reports whether a rollover is pending.
func (p *PWM) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

// Err returns the first failed sysfs write, if any.
func (p *PWM) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close disables both outputs.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for ch := range p.channels {
		errs = append(errs, p.writeAttr(ch, "enable", "0"))
	}
	p.outputs = 0
	return errors.Join(errs...)
}

// sysfsWrite is replaced in tests.
var sysfsWrite = writeSysfs

// writeSysfs writes value to a sysfs attribute, retrying while udev is
// still adjusting a new attribute's permissions.
func writeSysfs(path, value string) error {
	deadline := time.Now().Add(writeTimeout)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if !retryable(err) || time.Now().After(deadline) {
			return err
		}
		time.Sleep(retryInterval)
	}
}

func writeOnce(path, value string) error {
	// sysfs attributes reject O_TRUNC and O_CREATE
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	return errors.Join(werr, f.Close())
}

func retryable(err error) bool {
	return errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}
