package linux

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// USBIDPaths lists the usual locations of the usb.ids database.
var USBIDPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// IDs maps vendor and product IDs to names from a usb.ids database. The
// zero value knows no names.
type IDs struct {
	vendors  map[uint16]string
	products map[uint32]string // vid<<16 | pid
}

// LoadIDs parses the first readable database among paths, or USBIDPaths
// if none are given. Without a database it returns an empty IDs.
func LoadIDs(paths ...string) *IDs {
	if len(paths) == 0 {
		paths = USBIDPaths
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		ids := ParseIDs(f)
		f.Close()
		return ids
	}
	return &IDs{}
}

// ParseIDs reads the usb.ids format: a vendor line "vvvv  Name", then its
// products as tab-indented "pppp  Name" lines. Interface lines (two tabs)
// and the class tables after the vendor list are ignored.
func ParseIDs(r io.Reader) *IDs {
	ids := &IDs{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
	var (
		vid     uint16
		vendor  bool
		scanner = bufio.NewScanner(r)
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		if strings.HasPrefix(line, "\t\t") {
			continue
		}
		if line[0] == '\t' {
			if !vendor {
				continue
			}
			if id, name, ok := parseIDLine(line[1:]); ok {
				ids.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}
		id, name, ok := parseIDLine(line)
		vendor = ok
		if ok {
			vid = id
			ids.vendors[vid] = name
		}
	}
	return ids
}

// parseIDLine splits "xxxx  Name". Lines whose first field is not four hex
// digits, such as "C 00  (Defined at Interface level)", do not parse.
func parseIDLine(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimSpace(line[5:]), true
}

// Vendor returns the name of vendor vid, or "".
func (ids *IDs) Vendor(vid uint16) string {
	return ids.vendors[vid]
}

// Product returns the name of product pid of vendor vid, or "".
func (ids *IDs) Product(vid, pid uint16) string {
	return ids.products[uint32(vid)<<16|uint32(pid)]
}
