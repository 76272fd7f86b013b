package stress_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calvinalkan/poolstress/internal/stress"
	"github.com/calvinalkan/poolstress/pkg/pmpool"
)

// smallConfig returns a config small enough for unit tests that still
// exercises the real pool engine.
func smallConfig(t *testing.T, workers, cycles int) stress.Config {
	t.Helper()

	cfg := stress.DefaultConfig()
	cfg.Prefix = filepath.Join(t.TempDir(), "pmemobj_mt_safety")
	cfg.Workers = workers
	cfg.Cycles = cycles
	cfg.Extent = pmpool.MinPoolSize

	return cfg
}

func leftoverFiles(t *testing.T, prefix string) []string {
	t.Helper()

	matches, err := filepath.Glob(prefix + "-*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}

	return matches
}

// runWithTimeout fails the test instead of hanging when the harness
// deadlocks.
func runWithTimeout(t *testing.T, h *stress.Harness) (*stress.Report, error) {
	t.Helper()

	type outcome struct {
		report *stress.Report
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		r, err := h.Run(t.Context())
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		return o.report, o.err
	case <-time.After(60 * time.Second):
		t.Fatal("harness did not finish: deadlock")

		return nil, nil
	}
}

type recorder struct {
	mu     sync.Mutex
	events []stress.Event
}

func (r *recorder) Observe(ev stress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []stress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]stress.Event(nil), r.events...)
}

func (r *recorder) kinds(worker int) []stress.EventKind {
	var out []stress.EventKind

	for _, ev := range r.snapshot() {
		if ev.Worker == worker {
			out = append(out, ev.Kind)
		}
	}

	return out
}

// trackingBackend wraps a backend, injects failures by path and checks
// that no path ever has more than one live handle.
type trackingBackend struct {
	inner stress.Backend

	createErr  map[string]error
	createHook func(path string)
	openErrAt  map[string]int
	openErr    error

	mu         sync.Mutex
	live       map[string]int
	opens      map[string]int
	violations []string
	reclosed   atomic.Int64
}

func newTrackingBackend() *trackingBackend {
	return &trackingBackend{
		inner:     stress.PoolBackend{},
		createErr: map[string]error{},
		openErrAt: map[string]int{},
		live:      map[string]int{},
		opens:     map[string]int{},
	}
}

func (b *trackingBackend) acquire(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.live[path]++
	if b.live[path] > 1 {
		b.violations = append(b.violations, path)
	}
}

func (b *trackingBackend) Create(path, layout string, size uint64, mode os.FileMode) (stress.Handle, error) {
	if b.createHook != nil {
		b.createHook(path)
	}

	if err, ok := b.createErr[path]; ok {
		return nil, err
	}

	h, err := b.inner.Create(path, layout, size, mode)
	if err != nil {
		return nil, err
	}

	b.acquire(path)

	return &trackedHandle{b: b, path: path, inner: h}, nil
}

func (b *trackingBackend) Open(path, layout string) (stress.Handle, error) {
	b.mu.Lock()
	n := b.opens[path]
	b.opens[path]++
	b.mu.Unlock()

	if at, ok := b.openErrAt[path]; ok && at == n {
		return nil, b.openErr
	}

	h, err := b.inner.Open(path, layout)
	if err != nil {
		return nil, err
	}

	b.acquire(path)

	return &trackedHandle{b: b, path: path, inner: h}, nil
}

func (b *trackingBackend) Destroy(path string) error {
	return b.inner.Destroy(path)
}

func (b *trackingBackend) liveHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, n := range b.live {
		total += n
	}

	return total
}

type trackedHandle struct {
	b      *trackingBackend
	path   string
	inner  stress.Handle
	closed atomic.Bool
}

func (h *trackedHandle) Close() error {
	if h.closed.Swap(true) {
		h.b.reclosed.Add(1)

		return errors.New("handle reused after close")
	}

	h.b.mu.Lock()
	h.b.live[h.path]--
	h.b.mu.Unlock()

	return h.inner.Close()
}
