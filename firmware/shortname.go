package firmware

import "github.com/ardnew/usbfan/regmap"

const shortNameDigits = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

// ShortName encodes uid as regmap.ShortNameLen base-32 digits, five bits
// per digit, least significant bits first. Bytes past the end of uid read
// as zero.
func ShortName(uid []byte) [regmap.ShortNameLen]byte {
	var (
		name [regmap.ShortNameLen]byte
		bits uint16
		have int
		next int
	)
	for i := range name {
		if have < 5 {
			var b byte
			if next < len(uid) {
				b = uid[next]
			}
			next++
			bits |= uint16(b) << have
			have += 8
		}
		name[i] = shortNameDigits[bits&0x1f]
		bits >>= 5
		have -= 5
	}
	return name
}
