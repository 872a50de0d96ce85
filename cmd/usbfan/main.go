// Command usbfan configures and monitors USB fan controllers.
//
// Usage:
//
//	usbfan [flags] <command> [args]
//
// Commands:
//
//	list                      list attached fans
//	set <percent>             set fan speed
//	get [-percent]            print fan speed in RPM, or duty in percent
//	set-frequency <Hz>        set PWM frequency, e.g. 25000 or 25kHz
//	get-frequency             print PWM frequency
//	led <auto|on|off|blink>   set LED mode ("alert" is auto)
//	save                      persist configuration across resets
//	reset [-mode MODE]        reset: config, reboot, bootloader, factory
//	read-register <reg>       print a register by name or number
//	write-register <reg> <v>  write a register
//	watch [-interval D]       print fan speeds until interrupted
//
// With no -index, a command runs on the only fan attached, or on every fan
// with a per-device prefix when there are several.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/pkg/config"
	"github.com/ardnew/usbfan/pkg/prof"
)

// options are the global flags merged over the configuration file.
type options struct {
	configPath string
	verbose    bool
	jsonLog    bool
	transport  string
	sim        bool
	index      int
	all        bool
	fan        int
	serialPort string
	fifoDir    string
	timeout    time.Duration

	cfg config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "usbfan: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("usbfan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")
	fs.BoolVar(&opts.jsonLog, "json", false, "Output logs as JSON")
	fs.StringVar(&opts.transport, "transport", "", "Transport: usb, sim, serial or fifo (default from config, else usb)")
	fs.BoolVar(&opts.sim, "sim", false, "Use simulated fans (same as -transport sim)")
	fs.IntVar(&opts.index, "index", -1, "0-based index of the device to use")
	fs.BoolVar(&opts.all, "all", false, "Run on all attached devices instead of just the first one found")
	fs.IntVar(&opts.fan, "fan", 0, "0-based index of the fan on the device")
	fs.StringVar(&opts.serialPort, "serial-port", "", "Serial console port to use instead of USB")
	fs.StringVar(&opts.fifoDir, "fifo-dir", "", "Named-pipe bus directory to use instead of USB")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Per-transfer timeout (default from config)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: usbfan [flags] <command> [args]")
		fmt.Fprintln(fs.Output(), "\ncommands:")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(fs.Output(), "  %-16s %s\n", name, commands[name].help)
		}
		fmt.Fprintln(fs.Output(), "\nflags:")
		fs.PrintDefaults()
	}
	var profiling prof.Options
	profiling.Register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	configureLogging(opts.verbose, opts.jsonLog)

	stopProfiling, err := prof.Start(profiling)
	if err != nil {
		return err
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			pkg.LogWarn(pkg.ComponentProf, "writing profiles failed", "error", err)
		}
	}()

	if err := opts.load(); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
	pkg.LogDebug(pkg.ComponentCLI, "running command", "command", name, "transport", opts.transport)
	return cmd.run(ctx, &opts, rest, stdout)
}

func configureLogging(verbose, jsonLog bool) {
	if jsonLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}
	if verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
}

// load reads the configuration file and lets flags override it.
func (o *options) load() error {
	o.cfg = config.Default()
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	h := &o.cfg.Host
	switch {
	case o.serialPort != "":
		h.Transport = config.TransportSerial
		h.Serial.Port = o.serialPort
	case o.fifoDir != "":
		h.Transport = config.TransportFIFO
		h.FIFODir = o.fifoDir
	case o.sim:
		h.Transport = config.TransportSim
	case o.transport != "":
		h.Transport = o.transport
	}
	if o.timeout > 0 {
		h.Timeout = o.timeout
	}
	o.transport = h.Transport
	return o.cfg.Validate()
}
