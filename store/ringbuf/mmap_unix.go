//go:build linux || darwin

package ringbuf

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// mapRegion returns size bytes of zeroed anonymous memory.
func mapRegion(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	return data, nil
}

func unmapRegion(data []byte) error {
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return errors.Wrap(err, "munmap")
	}
	return nil
}
