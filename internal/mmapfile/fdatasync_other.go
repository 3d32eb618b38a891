//go:build !linux

package mmapfile

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}
