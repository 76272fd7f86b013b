// Package pmpool provides a file-backed, memory-mapped persistent object
// pool.
//
// A pool is a single file whose first 4 KiB hold pool metadata (signature,
// version, UUID, size, layout name, checksum). The rest of the file is the
// data region, mapped shared into the process while the pool is open.
//
// # Basic Usage
//
//	pool, err := pmpool.Create("/mnt/pmem/app.pool", "app-v1", 64<<20, 0o644)
//	if err != nil {
//	    // errors.Is(err, pmpool.ErrExists), os.ErrExist, ...
//	}
//	defer pool.Close()
//
//	copy(pool.Data(), payload)
//	err = pool.Persist()
//
// Passing size 0 to [Create] turns an existing, zero-filled file (for
// example one pre-sized with fallocate) into a pool of the same size.
//
// # Concurrency
//
// Create, Open, Close, Destroy and Check are safe for concurrent use from
// any number of goroutines, including against different pools at the same
// time. Open pools are tracked in a process-wide registry keyed by pool
// UUID (see [Lookup]). A pool file is opened by at most one [Pool] at a
// time: every open holds an exclusive flock on the file, so a second open
// in this or another process fails with [ErrBusy].
//
// A [*Pool] itself is owned by the goroutine that opened it; only Close and
// the accessors may be called concurrently.
//
// # Error Handling
//
// Every sentinel error wraps a [syscall.Errno] (EINVAL, EEXIST,
// EWOULDBLOCK, EBADF), so callers that only want an OS error code can use
// errors.As with a *syscall.Errno target.
package pmpool
