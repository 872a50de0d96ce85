//go:build linux

package linux

import (
	"fmt"
	"strconv"

	"github.com/warthog618/go-gpiocdev"

	"github.com/ardnew/usbfan/pkg"
)

// consumer labels the lines this package requests.
const consumer = "usbfand"

// findLine resolves a line name, or a decimal offset, on chip.
func findLine(chip, name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", chip, err)
	}
	defer c.Close()
	offset, err := c.FindLine(name)
	if err != nil {
		return 0, fmt.Errorf("find line %q on %s: %w", name, chip, err)
	}
	return offset, nil
}

// LED is a status LED on a GPIO output line.
type LED struct {
	line *gpiocdev.Line
}

// OpenLED requests line name on chip as an output, initially off.
func OpenLED(chip, name string, activeLow bool) (*LED, error) {
	offset, err := findLine(chip, name)
	if err != nil {
		return nil, err
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request LED line %q: %w", name, err)
	}
	return &LED{line: line}, nil
}

// Set implements firmware.LED.
func (l *LED) Set(on bool) {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "LED write failed", "error", err)
	}
}

// Close turns the LED off and releases its line.
func (l *LED) Close() error {
	_ = l.line.SetValue(0)
	return l.line.Close()
}

// openTach requests line name on chip as a pulled-up input and calls edge
// on every falling edge. Open-collector fan tachometers pull the line low
// twice per revolution.
func openTach(chip, name string, edge func()) (*gpiocdev.Line, error) {
	offset, err := findLine(chip, name)
	if err != nil {
		return nil, err
	}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { edge() }),
		gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request tachometer line %q: %w", name, err)
	}
	return line, nil
}
