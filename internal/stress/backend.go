package stress

import (
	"os"

	"github.com/calvinalkan/poolstress/pkg/fs"
	"github.com/calvinalkan/poolstress/pkg/pmpool"
)

// Handle is an open pool owned by a single worker.
type Handle interface {
	Close() error
}

// Backend is the pool storage engine under test.
//
// Create with size 0 turns the existing file at path into a pool of the
// file's size. Errors should carry a [syscall.Errno] where one applies so it
// can be reported.
//
// Implementations must be safe for concurrent calls on different paths.
type Backend interface {
	Create(path, layout string, size uint64, mode os.FileMode) (Handle, error)
	Open(path, layout string) (Handle, error)
	Destroy(path string) error
}

// PoolBackend adapts [pmpool] to [Backend].
//
// The zero value uses a [pmpool.Engine] over the real filesystem.
type PoolBackend struct {
	Engine *pmpool.Engine
}

var realPoolEngine = pmpool.NewEngine(fs.NewReal())

func (b PoolBackend) engine() *pmpool.Engine {
	if b.Engine != nil {
		return b.Engine
	}

	return realPoolEngine
}

// Create calls [pmpool.Engine.Create].
func (b PoolBackend) Create(path, layout string, size uint64, mode os.FileMode) (Handle, error) {
	p, err := b.engine().Create(path, layout, size, mode)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Open calls [pmpool.Engine.Open].
func (b PoolBackend) Open(path, layout string) (Handle, error) {
	p, err := b.engine().Open(path, layout)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Destroy calls [pmpool.Engine.Destroy].
func (b PoolBackend) Destroy(path string) error {
	return b.engine().Destroy(path)
}

var _ Backend = PoolBackend{}
