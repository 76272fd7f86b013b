//go:build linux

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// fallocate calls fallocate(2) in default mode, retrying on EINTR.
func fallocate(f File, offset, length int64) error {
	fd := int(f.Fd())

	for {
		err := unix.Fallocate(fd, 0, offset, length)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
