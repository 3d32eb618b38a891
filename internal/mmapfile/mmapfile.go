// Package mmapfile maps whole files read-only and syncs appended data.
package mmapfile

import (
	"fmt"
	"os"
)

// Hint is an access-pattern hint for the kernel.
type Hint uint

const (
	// Sequential requests aggressive read-ahead (MADV_SEQUENTIAL on Unix).
	Sequential Hint = 1 << 0

	// Random disables most read-ahead (MADV_RANDOM on Unix).
	Random Hint = 1 << 1
)

func (h Hint) Has(v Hint) bool {
	return h&v != 0
}

// File is a read-only mapping of an entire file. The mapped bytes must not
// be used after Close.
type File struct {
	f    *os.File
	data []byte
}

func Open(path string, hint Hint) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	if size > MaxSize {
		f.Close()
		return nil, fmt.Errorf("%s: %d bytes is too large to map", path, size)
	}
	m := &File{f: f}
	if size > 0 { // empty mappings are rejected by the OS
		m.data, err = mmap(f, int(size), hint)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: mmap: %w", path, err)
		}
	}
	return m, nil
}

func (m *File) Bytes() []byte {
	return m.data
}

func (m *File) Close() error {
	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Fdatasync makes the data written to f durable, skipping metadata like
// modification time where the OS allows it.
//
// Errors are not recoverable: after a failed sync the state of the written
// pages is unknown, so callers must stop writing to the file.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
