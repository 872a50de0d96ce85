package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ardnew/usbfan/firmware"
	"github.com/ardnew/usbfan/host/hal"
	"github.com/ardnew/usbfan/host/hal/linux"
	"github.com/ardnew/usbfan/host/serial"
	"github.com/ardnew/usbfan/pkg"
)

func runList(ctx context.Context, o *options, args []string, w io.Writer) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: unexpected arguments %q", pkg.ErrInvalidParameter, args)
	}
	b, err := openBackend(ctx, o)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.transport == nil {
		return listSerial(w)
	}

	cands, err := b.candidates(o)
	if errors.Is(err, pkg.ErrDeviceAbsent) {
		fmt.Fprintln(w, "No USB fan device found")
		return nil
	}
	if err != nil {
		return err
	}

	var ids *linux.IDs
	if b.usb != nil {
		ids = linux.LoadIDs()
	}
	fmt.Fprintln(w, header)
	for _, c := range cands {
		row := formatRow(c)
		if name := deviceName(c, ids); name != "" {
			row += " (" + name + ")"
		}
		fmt.Fprintln(w, row)
	}
	return nil
}

// deviceName prefers the device's own strings and falls back to usb.ids.
func deviceName(c hal.Candidate, ids *linux.IDs) string {
	vendor, product := c.Manufacturer, c.Product
	if ids != nil {
		if vendor == "" {
			vendor = ids.Vendor(c.VendorID)
		}
		if product == "" {
			product = ids.Product(c.VendorID, c.ProductID)
		}
	}
	return strings.TrimSpace(vendor + " " + product)
}

// listSerial lists the USB serial ports a fan console may be on.
func listSerial(w io.Writer) error {
	ports, err := serial.Ports(firmware.VendorID, 0)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No USB serial port found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintf(w, "%04x:%04x %-20s %s %s\n", p.VendorID, p.ProductID, p.Name, p.Serial, p.Product)
	}
	return nil
}
