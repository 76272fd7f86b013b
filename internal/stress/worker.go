package stress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/poolstress/pkg/fs"
)

// Result is the outcome of one worker.
type Result struct {
	Index int
	ID    string
	Path  string

	// FileCreated reports whether the backing file was opened and
	// allocated. Cleanup runs exactly when this is true.
	FileCreated bool

	// Created reports whether the backend created the pool.
	Created bool

	CyclesAttempted int
	CyclesCompleted int

	// Failure is the backend failure that ended this worker's work early.
	Failure *Failure

	// Aborted reports that the worker stopped early because the run was
	// aborted elsewhere.
	Aborted bool

	// Removed reports whether cleanup removed the backing file.
	Removed bool

	// Fatal is set if this worker hit an environment failure.
	Fatal *FatalError
}

type worker struct {
	index   int
	id      string
	path    string
	cfg     *Config
	fs      fs.FS
	backend Backend
	barrier *Barrier
	obs     Observer
}

func (w *worker) emit(ev Event) {
	ev.Worker = w.index
	ev.ID = w.id
	ev.Path = w.path
	ev.Time = time.Now()

	if ev.Kind != EventOpened && ev.Kind != EventClosed &&
		ev.Kind != EventOpenFailed && ev.Kind != EventCloseFailed {
		ev.Iteration = -1
	}

	w.obs.Observe(ev)
}

func (w *worker) fatal(res *Result, op string, err error) {
	fe := &FatalError{Worker: w.index, ID: w.id, Op: op, Path: w.path, Err: err}
	if res.Fatal == nil {
		res.Fatal = fe
	}

	w.emit(Event{Kind: EventFatal, Err: fe, Errno: Errno(err)})
}

func (w *worker) fail(res *Result, kind EventKind, op string, iteration int, err error) {
	res.Failure = &Failure{Op: op, Iteration: iteration, Err: err, Errno: Errno(err)}
	w.emit(Event{Kind: kind, Iteration: iteration, Err: err, Errno: res.Failure.Errno})
}

func (w *worker) run(ctx context.Context) (res Result) {
	res = Result{Index: w.index, ID: w.id, Path: w.path}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		w.fatal(&res, "panic", fmt.Errorf("%w: %v", errWorkerPanic, r))

		if res.FileCreated && !res.Removed {
			res.Removed = w.fs.Remove(w.path) == nil
		}
	}()

	w.emit(Event{Kind: EventCreating})

	if err := w.allocate(&res); err != nil {
		w.fatal(&res, "allocate backing file", err)
		w.cleanup(&res)

		return res
	}

	w.create(&res)

	w.emit(Event{Kind: EventBarrierWait})

	serial, err := w.barrier.Wait()

	switch {
	case errors.Is(err, ErrBarrierBroken):
		res.Aborted = true
		w.emit(Event{Kind: EventAborted})
	case err != nil:
		w.fatal(&res, "barrier wait", err)
	default:
		w.emit(Event{Kind: EventBarrierReleased, Serial: serial})

		if res.Created {
			w.cycle(ctx, &res)
		}
	}

	w.cleanup(&res)

	return res
}

func (w *worker) allocate(res *Result) error {
	f, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}

	res.FileCreated = true

	allocErr := w.fs.Fallocate(f, 0, w.cfg.Extent)
	closeErr := f.Close()

	if allocErr != nil {
		return allocErr
	}

	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}

	return nil
}

func (w *worker) create(res *Result) {
	h, err := w.backend.Create(w.path, w.cfg.Layout, 0, w.cfg.Mode)
	if err != nil {
		w.fail(res, EventCreateFailed, "create", -1, err)

		return
	}

	if err := h.Close(); err != nil {
		w.fail(res, EventCloseFailed, "close", -1, err)

		return
	}

	res.Created = true
	w.emit(Event{Kind: EventCreated})
}

func (w *worker) cycle(ctx context.Context, res *Result) {
	for i := range w.cfg.Cycles {
		if ctx.Err() != nil {
			res.Aborted = true
			w.emit(Event{Kind: EventAborted})

			return
		}

		res.CyclesAttempted++

		h, err := w.backend.Open(w.path, w.cfg.Layout)
		if err != nil {
			w.fail(res, EventOpenFailed, "open", i, err)

			return
		}

		w.emit(Event{Kind: EventOpened, Iteration: i})

		if err := h.Close(); err != nil {
			w.fail(res, EventCloseFailed, "close", i, err)

			return
		}

		res.CyclesCompleted++
		w.emit(Event{Kind: EventClosed, Iteration: i})
	}
}

func (w *worker) cleanup(res *Result) {
	if !res.FileCreated {
		return
	}

	w.emit(Event{Kind: EventDestroying})

	if err := w.fs.Remove(w.path); err != nil {
		w.fatal(res, "remove backing file", err)

		return
	}

	res.Removed = true
	w.emit(Event{Kind: EventDestroyed})
}
