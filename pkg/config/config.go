// Package config loads the YAML configuration shared by usbfan and
// usbfand.
//
// A file may carry either section or both:
//
//	host:
//	  transport: usb
//	  timeout: 1s
//	  watch:
//	    interval: 500ms
//	    window: 10
//	daemon:
//	  gpio_chip: gpiochip0
//	  tach_lines: [GPIO23, GPIO24]
//	  nvm_file: /var/lib/usbfand/nvm.bin
//	  console:
//	    port: /dev/ttyGS0
//	  fifo_dir: /run/usbfan-bus
//
// Missing values take the defaults of [Default]. Command-line flags
// override whatever the file sets.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/usbfan/pkg"
)

// Transports accepted by Host.Transport.
const (
	TransportUSB    = "usb"
	TransportSim    = "sim"
	TransportSerial = "serial"
	TransportFIFO   = "fifo"
)

const (
	defaultBaud     = 115200
	defaultTimeout  = time.Second
	defaultInterval = time.Second
	defaultWindow   = 10
	defaultNVMFile  = "/var/lib/usbfand/nvm.bin"
)

// Config is the whole configuration file.
type Config struct {
	Host   Host   `yaml:"host"`
	Daemon Daemon `yaml:"daemon"`
}

// Host configures the usbfan CLI.
type Host struct {
	// Capability overrides the BOS platform capability UUID fans announce.
	Capability string        `yaml:"capability"`
	Transport  string        `yaml:"transport"`
	Timeout    time.Duration `yaml:"timeout"`
	Serial     SerialConfig  `yaml:"serial"`
	Watch      WatchConfig   `yaml:"watch"`
	Sim        SimConfig     `yaml:"sim"`
	// FIFODir is the named-pipe bus the fifo transport looks in.
	FIFODir string `yaml:"fifo_dir"`
}

// SerialConfig names a console port.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// WatchConfig configures usbfan watch.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Window   int           `yaml:"window"`
}

// SimConfig lists the simulated units of the sim transport.
type SimConfig struct {
	Units []SimUnit `yaml:"units"`
}

// SimUnit is one simulated fan controller.
type SimUnit struct {
	Name   string  `yaml:"name"`
	UID    string  `yaml:"uid"` // hex
	MaxRPM float64 `yaml:"max_rpm"`
	// NVMFile keeps the unit's settings across runs. Empty keeps them in
	// memory.
	NVMFile string `yaml:"nvm_file"`
}

// Daemon configures usbfand. Empty board fields keep the board's own
// defaults.
type Daemon struct {
	GPIOChip     string       `yaml:"gpio_chip"`
	TachLines    [2]string    `yaml:"tach_lines"`
	LEDLine      string       `yaml:"led_line"`
	LEDActiveLow bool         `yaml:"led_active_low"`
	PWMChip      string       `yaml:"pwm_chip"`
	PWMChannels  *[2]int      `yaml:"pwm_channels"`
	NVMFile      string       `yaml:"nvm_file"`
	Console      SerialConfig `yaml:"console"`
	// FIFODir, if set, attaches the USB fan interface to the named-pipe
	// bus in that directory.
	FIFODir string `yaml:"fifo_dir"`
	// UniqueID is the hex unit ID the short name derives from. Empty
	// uses the machine ID.
	UniqueID string `yaml:"unique_id"`
}

// Default returns the configuration used without a file.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates the file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	pkg.LogDebug(pkg.ComponentConfig, "config loaded",
		"transport", cfg.Host.Transport, "sim_units", len(cfg.Host.Sim.Units))
	return cfg, nil
}

func (c *Config) applyDefaults() {
	h := &c.Host
	if h.Transport == "" {
		h.Transport = TransportUSB
	}
	if h.Timeout <= 0 {
		h.Timeout = defaultTimeout
	}
	if h.Serial.Baud == 0 {
		h.Serial.Baud = defaultBaud
	}
	if h.Watch.Interval <= 0 {
		h.Watch.Interval = defaultInterval
	}
	if h.Watch.Window == 0 {
		h.Watch.Window = defaultWindow
	}
	if len(h.Sim.Units) == 0 {
		h.Sim.Units = []SimUnit{{Name: "sim0"}}
	}

	d := &c.Daemon
	if d.NVMFile == "" {
		d.NVMFile = defaultNVMFile
	}
	if d.Console.Baud == 0 {
		d.Console.Baud = defaultBaud
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	h := c.Host
	switch h.Transport {
	case TransportUSB, TransportSim, TransportSerial, TransportFIFO:
	default:
		return fmt.Errorf("config: host.transport %q: %w", h.Transport, pkg.ErrInvalidParameter)
	}
	if h.Capability != "" {
		if _, err := uuid.Parse(h.Capability); err != nil {
			return fmt.Errorf("config: host.capability: %w", err)
		}
	}
	if h.Transport == TransportSerial && h.Serial.Port == "" {
		return fmt.Errorf("config: host.serial.port is required when host.transport is serial: %w", pkg.ErrInvalidParameter)
	}
	if h.Transport == TransportFIFO && h.FIFODir == "" {
		return fmt.Errorf("config: host.fifo_dir is required when host.transport is fifo: %w", pkg.ErrInvalidParameter)
	}
	if h.Serial.Baud < 0 {
		return fmt.Errorf("config: host.serial.baud %d: %w", h.Serial.Baud, pkg.ErrInvalidParameter)
	}
	if h.Watch.Window < 1 {
		return fmt.Errorf("config: host.watch.window %d: %w", h.Watch.Window, pkg.ErrInvalidParameter)
	}
	for i, u := range h.Sim.Units {
		if _, err := hex.DecodeString(u.UID); err != nil {
			return fmt.Errorf("config: host.sim.units[%d].uid: %w", i, err)
		}
		if u.MaxRPM < 0 {
			return fmt.Errorf("config: host.sim.units[%d].max_rpm %v: %w", i, u.MaxRPM, pkg.ErrInvalidParameter)
		}
	}

	d := c.Daemon
	if d.PWMChannels != nil && d.PWMChannels[0] == d.PWMChannels[1] {
		return fmt.Errorf("config: daemon.pwm_channels both %d: %w", d.PWMChannels[0], pkg.ErrInvalidParameter)
	}
	if _, err := hex.DecodeString(d.UniqueID); err != nil {
		return fmt.Errorf("config: daemon.unique_id: %w", err)
	}
	if d.Console.Baud < 0 {
		return fmt.Errorf("config: daemon.console.baud %d: %w", d.Console.Baud, pkg.ErrInvalidParameter)
	}
	return nil
}

// CapabilityUUID returns the configured capability, or def if none is set.
func (h Host) CapabilityUUID(def uuid.UUID) uuid.UUID {
	if h.Capability == "" {
		return def
	}
	id, err := uuid.Parse(h.Capability)
	if err != nil {
		return def
	}
	return id
}

// Bytes decodes u.UID.
func (u SimUnit) Bytes() []byte {
	b, _ := hex.DecodeString(u.UID)
	return b
}
