package pmpool

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// registry tracks every open [Pool] in the process, keyed by pool UUID.
//
// A pool is registered only after its metadata has been validated and the
// mapping is live, and unregistered before the mapping goes away, so
// [Lookup] never returns a pool whose memory is unmapped.
var registry = struct {
	mu     sync.RWMutex
	byUUID map[uuid.UUID]*Pool
}{byUUID: make(map[uuid.UUID]*Pool)}

// register adds p to the registry. A second live pool with the same UUID
// (a copied pool file) is rejected with [ErrBusy].
func register(p *Pool) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if other, ok := registry.byUUID[p.hdr.UUID]; ok {
		return fmt.Errorf("pool %s already open at %s: %w", p.hdr.UUID, other.path, ErrBusy)
	}

	registry.byUUID[p.hdr.UUID] = p

	return nil
}

// unregister removes p, leaving any other pool registered under the same
// UUID untouched.
func unregister(p *Pool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.byUUID[p.hdr.UUID] == p {
		delete(registry.byUUID, p.hdr.UUID)
	}
}

// Lookup returns the open pool with the given UUID.
func Lookup(id uuid.UUID) (*Pool, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	p, ok := registry.byUUID[id]

	return p, ok
}

// OpenPools returns the number of pools currently open in this process.
func OpenPools() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return len(registry.byUUID)
}
