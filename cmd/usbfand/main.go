// Command usbfand runs the fan controller firmware on a Linux single-board
// computer.
//
// Fans are driven by a sysfs PWM chip and measured through GPIO tachometer
// lines; the status LED is a GPIO output. Settings persist in a file. The
// register map is served by the debug console on a serial port, so
// "usbfan -serial-port PORT" can configure the daemon from the other end
// of the line. With -fifo DIR the USB fan interface itself is attached to
// a named-pipe bus, where "usbfan -fifo-dir DIR" finds it.
//
// Usage:
//
//	usbfand [-config file] [-console port] [-fifo dir] [-nvm file] [-unique-id hex] [-v] [-json]
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	bugst "go.bug.st/serial"

	devfifo "github.com/ardnew/usbfan/device/hal/fifo"
	"github.com/ardnew/usbfan/firmware/board/linux"
	"github.com/ardnew/usbfan/firmware/store"
	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/pkg/config"
	"github.com/ardnew/usbfan/pkg/prof"
)

// nvmSize is the size of the settings file.
const nvmSize = 1024

// consoleReadTimeout bounds each console read so shutdown is noticed.
const consoleReadTimeout = 250 * time.Millisecond

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "usbfand: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("usbfand", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to YAML config")
	verbose := fs.Bool("v", false, "Enable verbose logging")
	jsonLog := fs.Bool("json", false, "Output logs as JSON")
	consolePort := fs.String("console", "", "Serial port serving the register console")
	nvmFile := fs.String("nvm", "", "Settings file")
	uniqueID := fs.String("unique-id", "", "Unit ID in hex (default: machine ID)")
	fifoDir := fs.String("fifo", "", "Named-pipe bus directory to attach the USB interface to")
	var profiling prof.Options
	profiling.Register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}
	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	} else {
		pkg.SetLogLevel(slog.LevelInfo)
	}

	stopProfiling, err := prof.Start(profiling)
	if err != nil {
		return err
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			pkg.LogWarn(pkg.ComponentProf, "writing profiles failed", "error", err)
		}
	}()

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	d := &cfg.Daemon
	if *consolePort != "" {
		d.Console.Port = *consolePort
	}
	if *nvmFile != "" {
		d.NVMFile = *nvmFile
	}
	if *uniqueID != "" {
		d.UniqueID = *uniqueID
	}
	if *fifoDir != "" {
		d.FIFODir = *fifoDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	uid, err := unitID(*d)
	if err != nil {
		return err
	}

	nvm, err := store.OpenFile(d.NVMFile, nvmSize)
	if err != nil {
		return err
	}
	defer nvm.Close()

	b, err := linux.Open(boardConfig(*d))
	if err != nil {
		return err
	}
	defer b.Close()

	var console io.ReadWriter
	if d.Console.Port != "" {
		port, err := bugst.Open(d.Console.Port, &bugst.Mode{BaudRate: d.Console.Baud})
		if err != nil {
			return fmt.Errorf("console %s: %w", d.Console.Port, err)
		}
		defer port.Close()
		if err := port.SetReadTimeout(consoleReadTimeout); err != nil {
			return fmt.Errorf("console %s: %w", d.Console.Port, err)
		}
		console = port
		pkg.LogInfo(pkg.ComponentConsole, "console listening", "port", d.Console.Port, "baud", d.Console.Baud)
	} else {
		pkg.LogWarn(pkg.ComponentConsole, "no console port, registers are not reachable")
	}

	dm := newDaemon(b, nvm, uid, console)
	if d.FIFODir != "" {
		port := devfifo.New(d.FIFODir)
		dm.usb = port
		pkg.LogInfo(pkg.ComponentHAL, "USB interface on fifo bus", "dir", port.DeviceDir())
	}
	return dm.run(ctx)
}

// boardConfig overlays the configured board settings on the defaults.
func boardConfig(d config.Daemon) linux.Config {
	c := linux.DefaultConfig()
	if d.GPIOChip != "" {
		c.GPIOChip = d.GPIOChip
	}
	for ch, name := range d.TachLines {
		if name != "" {
			c.TachLines[ch] = name
		}
	}
	if d.LEDLine != "" {
		c.LEDLine = d.LEDLine
	}
	c.LEDActiveLow = d.LEDActiveLow
	if d.PWMChip != "" {
		c.PWMChip = d.PWMChip
	}
	if d.PWMChannels != nil {
		c.PWMChannels = *d.PWMChannels
	}
	return c
}

// unitID returns the configured unit ID, or the machine ID.
func unitID(d config.Daemon) ([]byte, error) {
	if d.UniqueID != "" {
		return hex.DecodeString(d.UniqueID)
	}
	return linux.MachineID()
}
