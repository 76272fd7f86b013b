package pmpool

import "syscall"

// poolError is a sentinel that also unwraps to an errno.
type poolError struct {
	msg   string
	errno syscall.Errno
}

func (e *poolError) Error() string { return e.msg }

func (e *poolError) Unwrap() error { return e.errno }

// Sentinel errors returned by pmpool operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, pmpool.ErrBusy) {
//	    // another handle has the pool open
//	}
var (
	// ErrInvalidInput indicates invalid arguments (layout too long, pool
	// size below [MinPoolSize], empty path).
	//
	// This is a programming error.
	ErrInvalidInput error = &poolError{"pmpool: invalid input", syscall.EINVAL}

	// ErrNotPool indicates the file is not a pool (bad signature or too
	// small to hold pool metadata).
	ErrNotPool error = &poolError{"pmpool: not a pool", syscall.EINVAL}

	// ErrCorrupt indicates pool metadata is damaged (checksum mismatch,
	// size mismatch, malformed layout).
	//
	// Recovery: remove the pool and recreate it.
	ErrCorrupt error = &poolError{"pmpool: corrupt", syscall.EINVAL}

	// ErrIncompatible indicates a format version or flag this package does
	// not understand.
	ErrIncompatible error = &poolError{"pmpool: incompatible", syscall.EINVAL}

	// ErrLayoutMismatch indicates the pool was created with a different
	// layout name than the one passed to [Open] or [Check].
	ErrLayoutMismatch error = &poolError{"pmpool: layout mismatch", syscall.EINVAL}

	// ErrExists indicates [Create] found existing pool metadata, or the
	// file already exists when a size was given.
	ErrExists error = &poolError{"pmpool: pool exists", syscall.EEXIST}

	// ErrBusy indicates the pool is already open through another handle,
	// in this process or another one.
	//
	// Recovery: close the other handle, or retry later.
	ErrBusy error = &poolError{"pmpool: busy", syscall.EWOULDBLOCK}

	// ErrClosed indicates the [Pool] has already been closed.
	//
	// This is a programming error.
	ErrClosed error = &poolError{"pmpool: closed", syscall.EBADF}
)
