package stress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/calvinalkan/poolstress/pkg/fs"
)

// Harness runs one stress test.
type Harness struct {
	cfg     Config
	fs      fs.FS
	backend Backend
	ids     IDSource
	obs     Observer
}

// Option configures a [Harness].
type Option func(*Harness)

// WithFS sets the filesystem used for backing files. Default: [fs.NewReal].
func WithFS(fsys fs.FS) Option {
	return func(h *Harness) { h.fs = fsys }
}

// WithBackend sets the backend under test. Default: [PoolBackend].
func WithBackend(b Backend) Option {
	return func(h *Harness) { h.backend = b }
}

// WithIDs overrides the id source selected by [Config.IDs].
func WithIDs(src IDSource) Option {
	return func(h *Harness) { h.ids = src }
}

// WithObserver sets the event observer. Use [Observers] for several.
func WithObserver(o Observer) Option {
	return func(h *Harness) { h.obs = o }
}

// New validates cfg and returns a Harness.
func New(cfg Config, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Harness{cfg: cfg}
	for _, opt := range opts {
		opt(h)
	}

	if h.fs == nil {
		h.fs = fs.NewReal()
	}

	if h.backend == nil {
		h.backend = PoolBackend{}
	}

	if h.ids == nil {
		h.ids, _ = NewIDSource(cfg.IDs)
	}

	if h.obs == nil {
		h.obs = discardObserver
	}

	return h, nil
}

// Config returns the harness configuration.
func (h *Harness) Config() Config {
	return h.cfg
}

// Run executes the test and blocks until every worker has returned.
//
// The report is always returned, even with an error. The error is nil or a
// [*FatalError]; backend failures are only recorded in the report.
// Cancelling ctx aborts the run like a fatal error.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	if h.cfg.Sweep {
		if _, err := h.sweep(); err != nil {
			return newReport(h.cfg, nil, start, time.Now()), h.harnessFatal("sweep", h.cfg.Prefix, err)
		}
	}

	barrier, err := NewBarrier(h.cfg.Workers)
	if err != nil {
		return newReport(h.cfg, nil, start, time.Now()), h.harnessFatal("barrier init", "", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopBreak := context.AfterFunc(runCtx, barrier.Break)
	defer stopBreak()

	var (
		fatalOnce sync.Once
		fatal     *FatalError
	)

	abort := func(fe *FatalError) {
		fatalOnce.Do(func() {
			fatal = fe
			cancel()
		})
	}

	results := make([]Result, h.cfg.Workers)

	var wg sync.WaitGroup

	for i := range results {
		id := h.ids.Next()
		w := &worker{
			index:   i,
			id:      id,
			path:    PoolPath(h.cfg.Prefix, id),
			cfg:     &h.cfg,
			fs:      h.fs,
			backend: h.backend,
			barrier: barrier,
			obs:     h.obs,
		}

		wg.Go(func() {
			results[i] = w.run(runCtx)
			if results[i].Fatal != nil {
				abort(results[i].Fatal)
			}
		})
	}

	wg.Wait()

	if fatal == nil && ctx.Err() != nil {
		fatal = h.harnessFatal("run", "", ctx.Err())
	}

	if err := barrier.Destroy(); err != nil && fatal == nil {
		fatal = h.harnessFatal("barrier destroy", "", err)
	}

	report := newReport(h.cfg, results, start, time.Now())

	if fatal != nil {
		return report, fatal
	}

	return report, nil
}

func (h *Harness) harnessFatal(op, path string, err error) *FatalError {
	fe := &FatalError{Worker: -1, Op: op, Path: path, Err: err}
	h.obs.Observe(Event{Kind: EventFatal, Worker: -1, Path: path, Iteration: -1, Err: fe, Errno: Errno(err), Time: time.Now()})

	return fe
}

// IsInterrupted reports whether err is a fatal error caused by context
// cancellation.
func IsInterrupted(err error) bool {
	var fe *FatalError
	if !errors.As(err, &fe) {
		return false
	}

	return errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded)
}
