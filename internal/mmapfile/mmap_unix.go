//go:build unix

package mmapfile

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, hint Hint) ([]byte, error) {
	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	advice := -1
	if hint.Has(Sequential) {
		advice = unix.MADV_SEQUENTIAL
	} else if hint.Has(Random) {
		advice = unix.MADV_RANDOM
	}
	if advice >= 0 {
		// ENOSYS: the kernel lacks madvise, the mapping still works
		if err := unix.Madvise(b, advice); err != nil && err != syscall.ENOSYS {
			unix.Munmap(b)
			return nil, fmt.Errorf("madvise(%d): %w", advice, err)
		}
	}
	return b, nil
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}
