package store

import (
	"fmt"

	"github.com/ardnew/usbfan/pkg"
)

// Store loads and persists the settings record.
type Store struct {
	nvm NVM
}

// New returns a store over nvm.
func New(nvm NVM) *Store {
	return &Store{nvm: nvm}
}

// Load reads the stored record. If it cannot be read, or fails revision or
// CRC validation, Load returns Default and ok=false. The failure is logged,
// never returned.
func (s *Store) Load() (rec Record, ok bool) {
	var buf [RecordSize]byte
	if _, err := s.nvm.ReadAt(buf[:], Offset); err != nil {
		pkg.LogWarn(pkg.ComponentStore, "read failed, using defaults", "error", err)
		return Default(), false
	}
	if err := Validate(buf[:]); err != nil {
		pkg.LogWarn(pkg.ComponentStore, "stored settings rejected, using defaults", "reason", err)
		return Default(), false
	}
	if err := ParseRecord(buf[:], &rec); err != nil {
		return Default(), false
	}
	return rec, true
}

// Commit writes rec with a fresh CRC. The whole record is written in one
// call.
func (s *Store) Commit(rec Record) error {
	rec.Revision = Revision
	rec.Seal()
	var buf [RecordSize]byte
	rec.MarshalTo(buf[:])
	if _, err := s.nvm.WriteAt(buf[:], Offset); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	pkg.LogInfo(pkg.ComponentStore, "settings committed",
		"led", rec.LEDMode, "period", rec.Period, "duty0", rec.Duty[0], "duty1", rec.Duty[1])
	return nil
}

// FactoryReset invalidates the stored record so the next Load returns
// Default. The caller reboots afterwards.
func (s *Store) FactoryReset() error {
	if _, err := s.nvm.WriteAt([]byte{erased}, Offset); err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}
	pkg.LogInfo(pkg.ComponentStore, "stored settings invalidated")
	return nil
}
