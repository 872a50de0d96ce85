package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// action runs a command on one target.
type action func(ctx context.Context, o *options, t *target, w io.Writer) error

type command struct {
	help string

	// prints marks commands whose output gets a per-device prefix when
	// they run on several devices.
	prints bool

	// parse validates the arguments before any device is opened.
	parse func(args []string) (action, error)

	// run replaces the per-target loop when set.
	run func(ctx context.Context, o *options, args []string, w io.Writer) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"list":           {help: "List attached fan devices", run: runList},
		"set":            {help: "Set fan speed, in percent", parse: parseSet},
		"get":            {help: "Get fan speed, in RPM", prints: true, parse: parseGet},
		"set-frequency":  {help: "Set PWM frequency", parse: parseSetFrequency},
		"get-frequency":  {help: "Get PWM frequency", prints: true, parse: noArgs(getFrequency)},
		"led":            {help: "Set LED mode: auto, on, off or blink", parse: parseLED},
		"save":           {help: "Persist configuration across device reset", parse: noArgs(save)},
		"reset":          {help: "Reset device", parse: parseReset},
		"read-register":  {help: "Read register value", prints: true, parse: parseReadRegister},
		"write-register": {help: "Write value to register", parse: parseWriteRegister},
		"watch":          {help: "Print fan speeds until interrupted", run: runWatch},
	}
	for name, cmd := range commands {
		if cmd.run == nil {
			cmd.run = perTarget(cmd)
			commands[name] = cmd
		}
	}
}

// perTarget opens the selected devices and runs the parsed action on each.
func perTarget(cmd command) func(context.Context, *options, []string, io.Writer) error {
	return func(ctx context.Context, o *options, args []string, w io.Writer) error {
		act, err := cmd.parse(args)
		if err != nil {
			return err
		}
		b, err := openBackend(ctx, o)
		if err != nil {
			return err
		}
		defer b.Close()
		ts, err := b.targets(o)
		if err != nil {
			return err
		}
		defer closeTargets(ts)

		prefix := cmd.prints && (len(ts) > 1 || o.all)
		if prefix {
			fmt.Fprintln(w, header)
		}
		var errs []error
		for _, t := range ts {
			if prefix {
				fmt.Fprintf(w, "%-47s: ", t.label)
			}
			if err := act(ctx, o, t, w); err != nil {
				if prefix {
					fmt.Fprintln(w, "error")
				}
				errs = append(errs, fmt.Errorf("%s: %w", t.label, err))
			}
		}
		return errors.Join(errs...)
	}
}

func noArgs(act action) func([]string) (action, error) {
	return func(args []string) (action, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: unexpected arguments %q", pkg.ErrInvalidParameter, args)
		}
		return act, nil
	}
}

func wantArgs(args []string, names ...string) error {
	if len(args) != len(names) {
		return fmt.Errorf("%w: want %d argument(s) %v, got %d", pkg.ErrInvalidParameter, len(names), names, len(args))
	}
	return nil
}

func parseSet(args []string) (action, error) {
	if err := wantArgs(args, "percent"); err != nil {
		return nil, err
	}
	pct, err := strconv.ParseFloat(args[0], 64)
	if err != nil || pct < 0 || pct > 100 {
		return nil, fmt.Errorf("%w: speed %q", pkg.ErrInvalidParameter, args[0])
	}
	return func(_ context.Context, o *options, t *target, _ io.Writer) error {
		return t.fan.SetSpeed(o.fan, pct)
	}, nil
}

func parseGet(args []string) (action, error) {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	percent := fs.Bool("percent", false, "Print the duty cycle in percent instead of RPM")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := wantArgs(fs.Args()); err != nil {
		return nil, err
	}
	return func(_ context.Context, o *options, t *target, w io.Writer) error {
		if *percent {
			pct, err := t.fan.Speed(o.fan)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%.2f\n", pct)
			return nil
		}
		rpm, err := t.fan.RPM(o.fan)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, rpm)
		return nil
	}, nil
}

func parseSetFrequency(args []string) (action, error) {
	if err := wantArgs(args, "frequency"); err != nil {
		return nil, err
	}
	var f physic.Frequency
	if err := f.Set(args[0]); err != nil {
		return nil, fmt.Errorf("%w: frequency %q: %w", pkg.ErrInvalidParameter, args[0], err)
	}
	return func(_ context.Context, _ *options, t *target, _ io.Writer) error {
		return t.fan.SetFrequency(f)
	}, nil
}

func getFrequency(_ context.Context, _ *options, t *target, w io.Writer) error {
	f, err := t.fan.Frequency()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, f)
	return nil
}

func parseLED(args []string) (action, error) {
	if err := wantArgs(args, "mode"); err != nil {
		return nil, err
	}
	m, err := regmap.ParseLEDMode(args[0])
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, _ *options, t *target, _ io.Writer) error {
		return t.fan.SetLED(m)
	}, nil
}

func save(_ context.Context, _ *options, t *target, _ io.Writer) error {
	return t.fan.Save()
}

func parseReset(args []string) (action, error) {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	mode := fs.String("mode", regmap.ResetReboot.String(), "Reset mode: config, reboot, bootloader or factory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := wantArgs(fs.Args()); err != nil {
		return nil, err
	}
	m, err := regmap.ParseResetMode(*mode)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, _ *options, t *target, _ io.Writer) error {
		return t.fan.Reset(m)
	}, nil
}

func parseReadRegister(args []string) (action, error) {
	if err := wantArgs(args, "register"); err != nil {
		return nil, err
	}
	a, err := regmap.ParseAddress(args[0])
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, _ *options, t *target, w io.Writer) error {
		b, err := t.fan.Registers().ReadRegister(a)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, formatRegister(a, b))
		return nil
	}, nil
}

// formatRegister prints text registers as text and the rest in decimal.
func formatRegister(a regmap.Address, b []byte) string {
	if r, ok := regmap.Lookup(a); ok && r.Text {
		return string(bytes.TrimRight(b, "\x00 "))
	}
	var word [2]byte
	copy(word[:], b)
	return strconv.Itoa(int(binary.LittleEndian.Uint16(word[:])))
}

func parseWriteRegister(args []string) (action, error) {
	if err := wantArgs(args, "register", "value"); err != nil {
		return nil, err
	}
	a, err := regmap.ParseAddress(args[0])
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: value %q", pkg.ErrInvalidParameter, args[1])
	}
	return func(_ context.Context, _ *options, t *target, _ io.Writer) error {
		return t.fan.Registers().WriteRegister(a, uint16(v))
	}, nil
}
