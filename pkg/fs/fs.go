// Package fs provides the filesystem abstraction used by pool backends and
// the stress harness, so tests can inject faults.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] and x/sys/unix
//   - [Chaos]: testing implementation that injects failures
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	err = fsys.Fallocate(f, 0, 16<<20)
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. [File.Fd] must return a valid OS
// file descriptor usable with mmap(2), flock(2) and fallocate(2) until the
// file is closed.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Name returns the path the file was opened with. See [os.File.Name].
	Name() string

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Truncate changes the size of the file. See [os.File.Truncate].
	Truncate(size int64) error
}

// FS defines the filesystem operations needed to create, size, inspect and
// remove pool backing files.
//
// Paths use OS semantics (like the os package and path/filepath).
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Fallocate reserves physical space for length bytes starting at offset.
	// The file size grows to at least offset+length. Reads of the reserved
	// range return zeros.
	Fallocate(f File, offset, length int64) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// Glob returns the names of all files matching pattern. See [filepath.Glob].
	Glob(pattern string) ([]string, error)
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
