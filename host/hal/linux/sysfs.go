package linux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// =============================================================================
// USB Device Information
// =============================================================================

// deviceInfo is what sysfs says about one USB device.
type deviceInfo struct {
	name       string // sysfs directory name, e.g. "1-1.2"
	busNum     uint8
	devNum     uint8
	vendorID   uint16
	productID  uint16
	usbVersion uint16 // bcdUSB
}

// devfsPath returns the device node of d under root.
func (d deviceInfo) devfsPath(root string) string {
	return fmt.Sprintf("%s/%03d/%03d", root, d.busNum, d.devNum)
}

// =============================================================================
// Sysfs Parsing
// =============================================================================

// scanDevices lists the USB devices under root, skipping root hubs and
// interfaces. Devices whose attributes cannot be read are skipped.
func scanDevices(root string) ([]deviceInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var devices []deviceInfo
	for _, entry := range entries {
		name := entry.Name()
		// "usbN" are root hubs; "1-1:1.0" are interfaces.
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		info, err := parseDevice(filepath.Join(root, name))
		if err != nil {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// parseDevice reads the attributes of the device directory path.
func parseDevice(path string) (deviceInfo, error) {
	info := deviceInfo{name: filepath.Base(path)}
	var err error
	if info.busNum, err = readUint8(filepath.Join(path, "busnum")); err != nil {
		return info, err
	}
	if info.devNum, err = readUint8(filepath.Join(path, "devnum")); err != nil {
		return info, err
	}
	if info.vendorID, err = readHex16(filepath.Join(path, "idVendor")); err != nil {
		return info, err
	}
	if info.productID, err = readHex16(filepath.Join(path, "idProduct")); err != nil {
		return info, err
	}
	s, err := readString(filepath.Join(path, "version"))
	if err != nil {
		return info, err
	}
	if info.usbVersion, err = parseBCD(s); err != nil {
		return info, err
	}
	return info, nil
}

// parseBCD parses the sysfs "version" attribute, bcdUSB printed as
// "%2x.%02x", e.g. " 2.01".
func parseBCD(s string) (uint16, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return 0, fmt.Errorf("version %q: %w", s, strconv.ErrSyntax)
	}
	hi, err := strconv.ParseUint(major, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(minor, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", s, err)
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// =============================================================================
// Sysfs Read Helpers
// =============================================================================

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readUint8(path string) (uint8, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}

func readHex16(path string) (uint16, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	return uint16(v), err
}
