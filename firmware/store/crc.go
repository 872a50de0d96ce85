package store

// CRC-8/CCITT parameters: polynomial x^8+x^2+x+1, no reflection, no final
// XOR.
const (
	crcPoly uint8 = 0x07
	crcInit uint8 = 0xff
)

// crcUpdate folds one byte into crc.
func crcUpdate(crc, b uint8) uint8 {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = crc<<1 ^ crcPoly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// Checksum returns the CRC-8 of data.
func Checksum(data []byte) uint8 {
	crc := crcInit
	for _, b := range data {
		crc = crcUpdate(crc, b)
	}
	return crc
}
