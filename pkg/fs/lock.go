package fs

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [TryLockFile] when another open file
// description already holds the lock.
var ErrWouldBlock = errors.New("lock would block")

// Lock is an exclusive flock(2) held on an open [File]. Call [Lock.Unlock]
// to release it.
//
// flock locks belong to the open file description, so two opens of the
// same path in one process exclude each other just like two processes do.
// Closing the file releases the lock implicitly.
type Lock struct {
	mu   sync.Mutex
	file File
}

// TryLockFile takes an exclusive, non-blocking flock on f.
//
// Returns an error satisfying [errors.Is] with [ErrWouldBlock] and
// [syscall.EWOULDBLOCK] if the lock is held elsewhere.
func TryLockFile(f File) (*Lock, error) {
	err := flockRetryEINTR(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s: %w", ErrWouldBlock, f.Name(), syscall.EWOULDBLOCK)
		}

		return nil, fmt.Errorf("flock %s: %w", f.Name(), err)
	}

	return &Lock{file: f}, nil
}

// Unlock releases the lock. It does not close the file.
//
// Unlock is idempotent; calls after the first return nil.
func (lk *Lock) Unlock() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	err := flockRetryEINTR(int(lk.file.Fd()), unix.LOCK_UN)
	lk.file = nil

	if err != nil {
		return fmt.Errorf("unlocking: %w", err)
	}

	return nil
}

// flockRetryEINTR calls flock, retrying on EINTR.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
