package stress

import (
	"errors"
	"fmt"
	"time"
)

// Sweep destroys every stale pool under the configured prefix through the
// backend. Only names an [IDSource] can produce are considered, so
// unrelated "<prefix>-*" files such as a report are left alone. It returns
// the paths removed; the error joins every path that could not be
// destroyed.
//
// Pools held open by a live process are reported as errors, not removed.
func (h *Harness) Sweep() ([]string, error) {
	return h.sweep()
}

func (h *Harness) sweep() ([]string, error) {
	matches, err := h.fs.Glob(h.cfg.Prefix + "-*")
	if err != nil {
		return nil, fmt.Errorf("glob stale pools: %w", err)
	}

	var (
		removed []string
		errs    []error
	)

	for _, path := range matches {
		if !IsPoolPath(h.cfg.Prefix, path) {
			continue
		}

		if err := h.backend.Destroy(path); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", path, err))

			continue
		}

		removed = append(removed, path)
		h.obs.Observe(Event{Kind: EventSwept, Worker: -1, Path: path, Iteration: -1, Time: time.Now()})
	}

	return removed, errors.Join(errs...)
}
