package fs

import (
	"errors"
	iofs "io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.OpenFile fails. Read-only opens
	// return EACCES, EIO, EMFILE or ENFILE. Writable opens add ENOSPC,
	// EDQUOT and EROFS.
	OpenFailRate float64

	// FallocateFailRate controls how often FS.Fallocate fails with ENOSPC,
	// EDQUOT, EIO or EOPNOTSUPP.
	FallocateFailRate float64

	// RemoveFailRate controls how often FS.Remove fails with EACCES, EPERM,
	// EBUSY, EIO or EROFS.
	RemoveFailRate float64

	// StatFailRate controls how often FS.Stat and FS.Exists fail with
	// EACCES or EIO.
	StatFailRate float64

	// Match restricts injection to paths for which it returns true.
	// Nil matches every path.
	Match func(path string) bool
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails      int64
	FallocateFails int64
	RemoveFails    int64
	StatFails      int64
}

// Total returns the sum of all injected faults.
func (s ChaosStats) Total() int64 {
	return s.OpenFails + s.FallocateFails + s.RemoveFails + s.StatFails
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps an [*iofs.PathError] carrying a real [syscall.Errno], so
// [errors.Is], [errors.As] and os.Is* helpers work like on real OS errors.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects failures for testing.
//
// Each call independently decides whether to inject. Chaos never injects
// ENOENT or EINTR; missing-path errors always come from the wrapped [FS].
// Files returned by OpenFile are the wrapped FS's files, unmodified.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex
	rng   *rand.Rand

	openFails      atomic.Int64
	fallocateFails atomic.Int64
	removeFails    atomic.Int64
	statFails      atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		config: config,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
}

// SetMode updates [Chaos] behavior. Safe to call concurrently with
// filesystem operations.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:      c.openFails.Load(),
		FallocateFails: c.fallocateFails.Load(),
		RemoveFails:    c.removeFails.Load(),
		StatFails:      c.statFails.Load(),
	}
}

// OpenFile opens a file with fault injection.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(path, c.config.OpenFailRate) {
		c.openFails.Add(1)

		errs := []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE}
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
			errs = append(errs, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS)
		}

		return nil, pathError("open", path, c.pickRandom(errs))
	}

	return c.fs.OpenFile(path, flag, perm)
}

// Fallocate reserves space with fault injection.
func (c *Chaos) Fallocate(f File, offset, length int64) error {
	if c.should(f.Name(), c.config.FallocateFailRate) {
		c.fallocateFails.Add(1)

		return pathError("fallocate", f.Name(), c.pickRandom([]syscall.Errno{
			syscall.ENOSPC,
			syscall.EDQUOT,
			syscall.EIO,
			syscall.EOPNOTSUPP,
		}))
	}

	return c.fs.Fallocate(f, offset, length)
}

// Stat returns file info with fault injection.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if c.should(path, c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, pathError("stat", path, c.pickRandom([]syscall.Errno{syscall.EACCES, syscall.EIO}))
	}

	return c.fs.Stat(path)
}

// Exists checks existence with fault injection.
func (c *Chaos) Exists(path string) (bool, error) {
	if c.should(path, c.config.StatFailRate) {
		c.statFails.Add(1)

		return false, pathError("stat", path, c.pickRandom([]syscall.Errno{syscall.EACCES, syscall.EIO}))
	}

	return c.fs.Exists(path)
}

// Remove deletes a file with fault injection.
func (c *Chaos) Remove(path string) error {
	if c.should(path, c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return pathError("remove", path, c.pickRandom([]syscall.Errno{
			syscall.EACCES,
			syscall.EPERM,
			syscall.EBUSY,
			syscall.EIO,
			syscall.EROFS,
		}))
	}

	return c.fs.Remove(path)
}

// Glob is never faulted; it is a passthrough to the wrapped [FS].
func (c *Chaos) Glob(pattern string) ([]string, error) {
	return c.fs.Glob(pattern)
}

func (c *Chaos) should(path string, rate float64) bool {
	if ChaosMode(c.mode.Load()) != ChaosModeActive || rate <= 0 {
		return false
	}

	if c.config.Match != nil && !c.config.Match(path) {
		return false
	}

	c.rngMu.Lock()
	roll := c.rng.Float64()
	c.rngMu.Unlock()

	return roll < rate
}

func (c *Chaos) pickRandom(errs []syscall.Errno) syscall.Errno {
	c.rngMu.Lock()
	idx := c.rng.IntN(len(errs))
	c.rngMu.Unlock()

	return errs[idx]
}

// pathError creates an injected [*iofs.PathError] with the given errno.
func pathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &iofs.PathError{Op: op, Path: path, Err: errno}}
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
