package stress

import "sync"

// Barrier is a reusable rendezvous for a fixed number of goroutines.
//
// Go has no pthread_barrier equivalent in the standard library; Barrier
// provides the same contract: [Barrier.Wait] blocks until parties callers
// have arrived, then releases all of them, telling exactly one of them it
// was the serial (last) arrival. After a release the next generation
// starts with zero arrivals.
type Barrier struct {
	mu   sync.Mutex
	cond *sync.Cond

	parties    int
	waiting    int
	generation uint64
	broken     bool
	destroyed  bool
}

// NewBarrier returns a barrier for exactly parties participants.
func NewBarrier(parties int) (*Barrier, error) {
	if parties < 1 {
		return nil, ErrInvalidParties
	}

	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)

	return b, nil
}

// Wait blocks until all parties have called Wait for the current
// generation.
//
// serial is true for exactly one caller per generation. Returns
// [ErrBarrierBroken] if the barrier is broken before or while waiting, and
// [ErrBarrierDestroyed] after [Barrier.Destroy].
func (b *Barrier) Wait() (serial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return false, ErrBarrierDestroyed
	}

	if b.broken {
		return false, ErrBarrierBroken
	}

	gen := b.generation

	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()

		return true, nil
	}

	for gen == b.generation && !b.broken {
		b.cond.Wait()
	}

	if gen == b.generation {
		b.waiting--

		return false, ErrBarrierBroken
	}

	return false, nil
}

// Break wakes every waiter with [ErrBarrierBroken]. Later calls to Wait
// fail immediately. Break is idempotent.
func (b *Barrier) Break() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.broken {
		b.broken = true
		b.cond.Broadcast()
	}
}

// Destroy releases the barrier. It must only be called once every Wait has
// returned; otherwise it returns [ErrBarrierBusy] and the barrier stays
// usable.
func (b *Barrier) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return ErrBarrierDestroyed
	}

	if b.waiting > 0 {
		return ErrBarrierBusy
	}

	b.destroyed = true

	return nil
}

// Parties returns the number of participants per generation.
func (b *Barrier) Parties() int {
	return b.parties
}

// Waiting returns the number of goroutines blocked in the current
// generation.
func (b *Barrier) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.waiting
}
