package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbfan/pkg"
	"github.com/ardnew/usbfan/regmap"
)

// Revision is the record layout revision this build reads and writes.
// 0 and 255 are reserved: they are what blank or erased storage holds.
const Revision uint8 = 2

// RecordSize is the packed size of a Record in bytes.
const RecordSize = 9

// Offset is the NVM offset of the record.
const Offset = 0

// Record holds the persisted user settings.
type Record struct {
	Revision uint8
	LEDMode  regmap.LEDMode
	Period   uint16
	Duty     [regmap.NumChannels]uint16
	CRC      uint8
}

// Default returns the compiled-in settings: 25 kHz, both fans off, LED in
// auto mode.
func Default() Record {
	return Record{
		Revision: Revision,
		LEDMode:  regmap.LEDAuto,
		Period:   regmap.DefaultPeriod,
	}
}

// MarshalTo packs r into buf without touching the CRC byte's value, which
// is copied from r.CRC. It returns RecordSize, or 0 if buf is too small.
func (r *Record) MarshalTo(buf []byte) int {
	if len(buf) < RecordSize {
		return 0
	}
	buf[0] = r.Revision
	buf[1] = uint8(r.LEDMode)
	binary.LittleEndian.PutUint16(buf[2:4], r.Period)
	binary.LittleEndian.PutUint16(buf[4:6], r.Duty[0])
	binary.LittleEndian.PutUint16(buf[6:8], r.Duty[1])
	buf[8] = r.CRC
	return RecordSize
}

// Seal recomputes r.CRC over the packed fields.
func (r *Record) Seal() {
	var buf [RecordSize]byte
	r.MarshalTo(buf[:])
	r.CRC = Checksum(buf[:RecordSize-1])
}

// ParseRecord unpacks a record. It checks the length only; use Validate
// for revision and CRC.
func ParseRecord(data []byte, out *Record) error {
	if len(data) < RecordSize {
		return fmt.Errorf("%w: record of %d bytes", pkg.ErrBufferTooSmall, len(data))
	}
	out.Revision = data[0]
	out.LEDMode = regmap.LEDMode(data[1])
	out.Period = binary.LittleEndian.Uint16(data[2:4])
	out.Duty[0] = binary.LittleEndian.Uint16(data[4:6])
	out.Duty[1] = binary.LittleEndian.Uint16(data[6:8])
	out.CRC = data[8]
	return nil
}

// Validate reports why a packed record must not be used, or nil.
func Validate(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("%w: record of %d bytes", pkg.ErrBufferTooSmall, len(data))
	}
	if data[0] != Revision {
		return fmt.Errorf("record revision %d, want %d", data[0], Revision)
	}
	if crc := Checksum(data[:RecordSize]); crc != 0 {
		return fmt.Errorf("record checksum residue %#02x", crc)
	}
	return nil
}
