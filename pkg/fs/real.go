package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Real implements [FS] using the real filesystem.
//
// All methods are passthroughs to the [os] package with identical behavior
// and error semantics, except [Real.Exists] which wraps [os.Stat] and
// [Real.Fallocate] which issues fallocate(2) where the platform has it.
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

// A passthrough wrapper for [os.OpenFile].
func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

// Fallocate reserves length bytes at offset in f.
//
// Errors are returned as [*os.PathError] with the underlying errno.
func (r *Real) Fallocate(f File, offset, length int64) error {
	if offset < 0 || length <= 0 {
		return &os.PathError{Op: "fallocate", Path: f.Name(), Err: fmt.Errorf("offset %d length %d: %w", offset, length, os.ErrInvalid)}
	}

	err := fallocate(f, offset, length)
	if err != nil {
		return &os.PathError{Op: "fallocate", Path: f.Name(), Err: err}
	}

	return nil
}

// A passthrough wrapper for [os.Stat].
func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists checks if a file exists using [os.Stat].
func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// A passthrough wrapper for [os.Remove].
func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

// A passthrough wrapper for [filepath.Glob].
func (r *Real) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
