package store

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ardnew/usbfan/pkg"
)

// NVM is byte-addressable non-volatile memory.
type NVM interface {
	io.ReaderAt
	io.WriterAt
}

// erased is the value of an unprogrammed NVM byte.
const erased = 0xff

// Memory is an in-memory NVM that starts out erased.
type Memory struct {
	mu     sync.Mutex
	data   []byte
	writes int
}

// NewMemory returns an erased Memory of size bytes.
func NewMemory(size int) *Memory {
	data := make([]byte, size)
	for i := range data {
		data[i] = erased
	}
	return &Memory{data: data}
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Writes past the end fail.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("%w: write of %d bytes at %d", pkg.ErrInvalidParameter, len(p), off)
	}
	m.writes++
	return copy(m.data[off:], p), nil
}

// Writes returns the number of WriteAt calls that succeeded.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// File is an NVM backed by a regular file, for boards without EEPROM. The
// file is created erased at the requested size if it does not exist.
type File struct {
	f *os.File
}

// OpenFile opens or creates the backing file at path.
func OpenFile(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open nvm: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat nvm: %w", err)
	}
	if info.Size() < int64(size) {
		fill := make([]byte, int64(size)-info.Size())
		for i := range fill {
			fill[i] = erased
		}
		if _, err := f.WriteAt(fill, info.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize nvm: %w", err)
		}
	}
	return &File{f: f}, nil
}

// ReadAt implements io.ReaderAt.
func (n *File) ReadAt(p []byte, off int64) (int, error) {
	return n.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt and flushes to stable storage.
func (n *File) WriteAt(p []byte, off int64) (int, error) {
	c, err := n.f.WriteAt(p, off)
	if err != nil {
		return c, err
	}
	return c, n.f.Sync()
}

// Close closes the backing file.
func (n *File) Close() error {
	return n.f.Close()
}
