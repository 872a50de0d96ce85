package regmap

import (
	"fmt"

	"github.com/ardnew/usbfan/pkg"
)

// Version is the register interface version.
type Version struct {
	Major uint8
	Minor uint8
}

// CurrentVersion is the interface version implemented by this module.
var CurrentVersion = Version{Major: 1, Minor: 0}

// ParseVersion decodes the version register payload, which is {minor, major}.
func ParseVersion(b []byte) (Version, error) {
	if len(b) < 2 {
		return Version{}, fmt.Errorf("%w: version payload of %d bytes", pkg.ErrProtocol, len(b))
	}
	return Version{Major: b[1], Minor: b[0]}, nil
}

// Bytes returns the version register payload.
func (v Version) Bytes() [2]byte {
	return [2]byte{v.Minor, v.Major}
}

// Compatible reports whether a host built for CurrentVersion can drive a
// device reporting v: majors must match and the device minor must be at
// least the host minor.
func (v Version) Compatible() bool {
	return v.Major == CurrentVersion.Major && v.Minor >= CurrentVersion.Minor
}

// Check returns ErrIncompatibleVersion when v is not Compatible.
func (v Version) Check() error {
	if v.Major != CurrentVersion.Major {
		return fmt.Errorf("%w: major mismatch %s vs %s", pkg.ErrIncompatibleVersion, v, CurrentVersion)
	}
	if v.Minor < CurrentVersion.Minor {
		return fmt.Errorf("%w: minor %s < %s", pkg.ErrIncompatibleVersion, v, CurrentVersion)
	}
	return nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
