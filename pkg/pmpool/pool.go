package pmpool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/poolstress/pkg/fs"
)

// maxPoolSize bounds mappings to what a Go slice length can address.
const maxPoolSize = uint64(1) << 40

// Engine creates and opens pools through a filesystem.
//
// The package-level functions use an Engine over [fs.Real]. Tests construct
// their own Engine over [fs.Chaos] to inject filesystem faults. All engines
// share the process-wide registry.
type Engine struct {
	fs fs.FS
}

// NewEngine returns an Engine that performs file operations through fsys.
// Panics if fsys is nil.
func NewEngine(fsys fs.FS) *Engine {
	if fsys == nil {
		panic("pmpool: nil fs")
	}

	return &Engine{fs: fsys}
}

var defaultEngine = NewEngine(fs.NewReal())

// Create creates a pool at path. See [Engine.Create].
func Create(path, layout string, size uint64, mode os.FileMode) (*Pool, error) {
	return defaultEngine.Create(path, layout, size, mode)
}

// Open opens the pool at path. See [Engine.Open].
func Open(path, layout string) (*Pool, error) {
	return defaultEngine.Open(path, layout)
}

// Destroy removes the pool file at path. See [Engine.Destroy].
func Destroy(path string) error {
	return defaultEngine.Destroy(path)
}

// Check validates pool metadata at path without opening it. See [Engine.Check].
func Check(path, layout string) error {
	return defaultEngine.Check(path, layout)
}

// Pool is an open, memory-mapped pool.
type Pool struct {
	mu     sync.Mutex
	closed bool

	path string
	file fs.File
	lock *fs.Lock
	data []byte
	hdr  header
}

// Create creates a new pool at path with the given layout name.
//
// If size is non-zero, the file must not exist; it is created with mode and
// pre-allocated to size bytes. If size is zero, the file must already exist,
// be at least [MinPoolSize] bytes and have an all-zero metadata area; the
// pool takes the file's size and mode is ignored.
//
// The returned Pool must be closed with [Pool.Close].
//
// Possible errors:
//   - [ErrInvalidInput]: layout too long, size below [MinPoolSize]
//   - [ErrExists]: file exists (size > 0) or already holds metadata (size 0)
//   - [ErrBusy]: the file is open through another handle
//   - os errors: open, stat, fallocate, mmap failures
func (e *Engine) Create(path, layout string, size uint64, mode os.FileMode) (*Pool, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required: %w", ErrInvalidInput)
	}

	err := validateLayout(layout)
	if err != nil {
		return nil, err
	}

	if size != 0 && size < MinPoolSize {
		return nil, fmt.Errorf("pool size %d below minimum %d: %w", size, MinPoolSize, ErrInvalidInput)
	}

	if size > maxPoolSize {
		return nil, fmt.Errorf("pool size %d exceeds max %d: %w", size, maxPoolSize, ErrInvalidInput)
	}

	var (
		f       fs.File
		created bool
	)

	if size == 0 {
		f, err = e.fs.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
	} else {
		f, err = e.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, mode)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("%w: %w", ErrExists, err)
			}

			return nil, fmt.Errorf("create file: %w", err)
		}

		created = true
	}

	p, err := e.initPool(f, layout, size)
	if err != nil {
		_ = f.Close()

		if created {
			_ = e.fs.Remove(path)
		}

		return nil, err
	}

	return p, nil
}

// initPool locks, sizes, maps and stamps metadata onto an open file.
// On error the caller still owns f.
func (e *Engine) initPool(f fs.File, layout string, size uint64) (*Pool, error) {
	lock, err := fs.TryLockFile(f)
	if err != nil {
		return nil, lockError(err)
	}

	p, err := e.initLocked(f, lock, layout, size)
	if err != nil {
		_ = lock.Unlock()

		return nil, err
	}

	return p, nil
}

func (e *Engine) initLocked(f fs.File, lock *fs.Lock, layout string, size uint64) (*Pool, error) {
	if size == 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat file: %w", err)
		}

		if info.Size() < MinPoolSize {
			return nil, fmt.Errorf("file size %d below minimum %d: %w", info.Size(), MinPoolSize, ErrInvalidInput)
		}

		size = uint64(info.Size())
		if size > maxPoolSize {
			return nil, fmt.Errorf("file size %d exceeds max %d: %w", size, maxPoolSize, ErrInvalidInput)
		}

		meta := make([]byte, headerSize)

		_, err = f.ReadAt(meta, 0)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}

		if !isZero(meta) {
			return nil, fmt.Errorf("%s has non-zero metadata: %w", f.Name(), ErrExists)
		}
	} else {
		err := e.fs.Fallocate(f, 0, int64(size))
		if err != nil {
			return nil, fmt.Errorf("allocate pool: %w", err)
		}
	}

	data, err := mapFile(f, size)
	if err != nil {
		return nil, err
	}

	hdr := newHeader(layout, size)
	copy(data[:headerSize], encodeHeader(&hdr))

	err = unix.Msync(data[:headerSize], unix.MS_SYNC)
	if err != nil {
		_ = unix.Munmap(data)

		return nil, fmt.Errorf("msync metadata: %w", err)
	}

	p := &Pool{path: f.Name(), file: f, lock: lock, data: data, hdr: hdr}

	err = register(p)
	if err != nil {
		_ = unix.Munmap(data)

		return nil, err
	}

	return p, nil
}

// Open opens an existing pool.
//
// If layout is non-empty it must match the layout the pool was created
// with.
//
// Possible errors:
//   - [ErrInvalidInput]: layout too long
//   - [ErrNotPool]: file too small or bad signature
//   - [ErrCorrupt]: checksum or size mismatch
//   - [ErrIncompatible]: unknown version or flags
//   - [ErrLayoutMismatch]: layout differs
//   - [ErrBusy]: the pool is open through another handle
//   - os errors: open, stat, mmap failures
func (e *Engine) Open(path, layout string) (*Pool, error) {
	err := validateLayout(layout)
	if err != nil {
		return nil, err
	}

	f, err := e.fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	lock, err := fs.TryLockFile(f)
	if err != nil {
		_ = f.Close()

		return nil, lockError(err)
	}

	p, err := openLocked(f, lock, layout)
	if err != nil {
		_ = lock.Unlock()
		_ = f.Close()

		return nil, err
	}

	return p, nil
}

func openLocked(f fs.File, lock *fs.Lock, layout string) (*Pool, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	fileSize := info.Size()
	if fileSize < MinPoolSize {
		return nil, fmt.Errorf("file size %d below minimum pool size %d: %w", fileSize, MinPoolSize, ErrNotPool)
	}

	if uint64(fileSize) > maxPoolSize {
		return nil, fmt.Errorf("file size %d exceeds max %d: %w", fileSize, maxPoolSize, ErrInvalidInput)
	}

	data, err := mapFile(f, uint64(fileSize))
	if err != nil {
		return nil, err
	}

	hdr, err := decodeHeader(data)
	if err == nil {
		err = checkOpened(&hdr, uint64(fileSize), layout)
	}

	if err != nil {
		_ = unix.Munmap(data)

		return nil, err
	}

	p := &Pool{path: f.Name(), file: f, lock: lock, data: data, hdr: hdr}

	err = register(p)
	if err != nil {
		_ = unix.Munmap(data)

		return nil, err
	}

	return p, nil
}

// checkOpened validates decoded metadata against the file and caller.
func checkOpened(hdr *header, fileSize uint64, layout string) error {
	if hdr.PoolSize != fileSize {
		return fmt.Errorf("pool size %d != file size %d: %w", hdr.PoolSize, fileSize, ErrCorrupt)
	}

	if layout != "" && hdr.Layout != layout {
		return fmt.Errorf("pool layout %q, expected %q: %w", hdr.Layout, layout, ErrLayoutMismatch)
	}

	return nil
}

// Check validates the metadata of the pool at path against its file size
// and, if non-empty, layout. The pool must not be open elsewhere.
//
// Returns nil if the pool is consistent.
func (e *Engine) Check(path, layout string) error {
	err := validateLayout(layout)
	if err != nil {
		return err
	}

	f, err := e.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	defer func() { _ = f.Close() }()

	lock, err := fs.TryLockFile(f)
	if err != nil {
		return lockError(err)
	}

	defer func() { _ = lock.Unlock() }()

	hdr, fileSize, err := readHeader(f)
	if err != nil {
		return err
	}

	return checkOpened(&hdr, fileSize, layout)
}

// Destroy removes the pool file at path.
//
// The file must hold valid pool metadata, or an all-zero metadata area
// (a file prepared for [Create] that never became a pool). Destroy fails
// with [ErrBusy] while the pool is open anywhere.
func (e *Engine) Destroy(path string) error {
	f, err := e.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	lock, err := fs.TryLockFile(f)
	if err != nil {
		_ = f.Close()

		return lockError(err)
	}

	_, _, err = readHeader(f)
	if err != nil && errors.Is(err, ErrNotPool) {
		meta := make([]byte, headerSize)

		n, readErr := f.ReadAt(meta, 0)
		if (readErr == nil || errors.Is(readErr, io.EOF)) && isZero(meta[:n]) {
			err = nil
		}
	}

	unlockErr := lock.Unlock()
	closeErr := f.Close()

	if err != nil {
		return err
	}

	if unlockErr != nil || closeErr != nil {
		return errors.Join(unlockErr, closeErr)
	}

	// The lock is dropped before unlinking; a concurrent Open that wins the
	// race opens a file that is about to disappear, same as any unlink.
	err = e.fs.Remove(path)
	if err != nil {
		return fmt.Errorf("remove pool: %w", err)
	}

	return nil
}

// readHeader reads and decodes metadata through the file descriptor.
func readHeader(f fs.File) (header, uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return header{}, 0, fmt.Errorf("stat file: %w", err)
	}

	if info.Size() < headerSize {
		return header{}, 0, fmt.Errorf("file size %d below metadata size %d: %w", info.Size(), headerSize, ErrNotPool)
	}

	meta := make([]byte, headerSize)

	_, err = f.ReadAt(meta, 0)
	if err != nil {
		return header{}, 0, fmt.Errorf("read metadata: %w", err)
	}

	hdr, err := decodeHeader(meta)
	if err != nil {
		return header{}, 0, err
	}

	return hdr, uint64(info.Size()), nil
}

// Close unmaps the pool, releases its lock and closes the file.
//
// Returns [ErrClosed] if the pool was already closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.closed = true

	unregister(p)

	var errs []error

	err := unix.Msync(p.data, unix.MS_SYNC)
	if err != nil {
		errs = append(errs, fmt.Errorf("msync: %w", err))
	}

	err = unix.Munmap(p.data)
	if err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}

	p.data = nil

	err = p.lock.Unlock()
	if err != nil {
		errs = append(errs, err)
	}

	err = p.file.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("close file: %w", err))
	}

	return errors.Join(errs...)
}

// Data returns the pool's data region (everything after the metadata).
//
// The slice aliases the shared mapping and is valid until [Pool.Close].
// Returns nil after Close.
func (p *Pool) Data() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	return p.data[headerSize:]
}

// Persist flushes the data region to the backing file.
func (p *Pool) Persist() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	err := unix.Msync(p.data, unix.MS_SYNC)
	if err != nil {
		return fmt.Errorf("msync: %w", err)
	}

	return nil
}

// Path returns the path the pool was opened with.
func (p *Pool) Path() string { return p.path }

// UUID returns the pool's UUID.
func (p *Pool) UUID() uuid.UUID { return p.hdr.UUID }

// Layout returns the layout name the pool was created with.
func (p *Pool) Layout() string { return p.hdr.Layout }

// Size returns the total pool size in bytes, metadata included.
func (p *Pool) Size() uint64 { return p.hdr.PoolSize }

// CreatedAt returns the pool creation time.
func (p *Pool) CreatedAt() time.Time { return p.hdr.Created }

// mapFile maps size bytes of f shared, read-write.
func mapFile(f fs.File, size uint64) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return data, nil
}

// lockError maps lock contention to [ErrBusy].
func lockError(err error) error {
	if errors.Is(err, fs.ErrWouldBlock) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}

	return fmt.Errorf("lock pool: %w", err)
}
