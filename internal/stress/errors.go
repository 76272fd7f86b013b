package stress

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors returned by stress operations.
var (
	// ErrFatal matches every [*FatalError].
	ErrFatal = errors.New("stress: fatal")

	// ErrInvalidConfig indicates a [Config] that cannot be run.
	ErrInvalidConfig = errors.New("stress: invalid config")

	// ErrInvalidParties is returned by [NewBarrier] for a party count < 1.
	ErrInvalidParties = errors.New("stress: barrier parties must be >= 1")

	// ErrBarrierBroken is returned by [Barrier.Wait] after [Barrier.Break].
	ErrBarrierBroken = errors.New("stress: barrier broken")

	// ErrBarrierDestroyed is returned when using a destroyed [Barrier].
	ErrBarrierDestroyed = errors.New("stress: barrier destroyed")

	// ErrBarrierBusy is returned by [Barrier.Destroy] while goroutines are
	// still blocked in [Barrier.Wait].
	ErrBarrierBusy = errors.New("stress: barrier has waiters")

	errWorkerPanic = errors.New("worker panicked")
)

// FatalError reports an environment failure that aborted the run.
//
// Worker is -1 for failures outside any worker (barrier setup, sweep,
// cancellation).
type FatalError struct {
	Worker int
	ID     string
	Op     string
	Path   string
	Err    error
}

func (e *FatalError) Error() string {
	switch {
	case e.Worker < 0 && e.Path == "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Worker < 0:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("worker %s: %s %s: %v", e.ID, e.Op, e.Path, e.Err)
	}
}

// Unwrap makes a FatalError match both [ErrFatal] and its cause.
func (e *FatalError) Unwrap() []error {
	return []error{ErrFatal, e.Err}
}

// Failure is a backend failure observed by one worker.
type Failure struct {
	// Op is "create", "open" or "close".
	Op string

	// Iteration is the cycle index for open/close failures, -1 for create.
	Iteration int

	Err   error
	Errno syscall.Errno
}

func (f *Failure) Error() string {
	if f.Iteration < 0 {
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	}

	return fmt.Sprintf("%s (cycle %d): %v", f.Op, f.Iteration, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Errno returns the OS error code carried by err, or 0 if there is none.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return 0
}
