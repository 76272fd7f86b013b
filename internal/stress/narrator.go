package stress

import (
	"fmt"
	"io"
	"sync"
)

// Narrator prints one line per event to a writer.
//
// By default only the lines an operator needs are printed: creation
// attempts, failures, barrier arrival and cleanup. Verbose adds every other
// transition.
type Narrator struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewNarrator returns a Narrator writing to out.
func NewNarrator(out io.Writer, verbose bool) *Narrator {
	return &Narrator{out: out, verbose: verbose}
}

// Observe prints ev if it has a line at the narrator's verbosity.
func (n *Narrator) Observe(ev Event) {
	line := n.format(ev)
	if line == "" {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	_, _ = fmt.Fprintln(n.out, line)
}

func (n *Narrator) format(ev Event) string {
	switch ev.Kind {
	case EventCreating:
		return fmt.Sprintf("%s: creating %s", ev.ID, ev.Path)
	case EventCreateFailed:
		return fmt.Sprintf("%s: failed to create %s: %s", ev.ID, ev.Path, describeErr(ev))
	case EventBarrierWait:
		return ev.ID + ": waiting for barrier"
	case EventOpenFailed:
		return fmt.Sprintf("%s: failed to open %s (cycle %d): %s", ev.ID, ev.Path, ev.Iteration, describeErr(ev))
	case EventCloseFailed:
		return fmt.Sprintf("%s: failed to close %s: %s", ev.ID, ev.Path, describeErr(ev))
	case EventDestroying:
		return fmt.Sprintf("%s: destroying %s", ev.ID, ev.Path)
	case EventAborted:
		return ev.ID + ": aborted"
	case EventFatal:
		if ev.Worker < 0 {
			return fmt.Sprintf("fatal: %v", ev.Err)
		}

		return fmt.Sprintf("%s: fatal: %v", ev.ID, ev.Err)
	case EventSwept:
		return "swept stale pool " + ev.Path
	}

	if !n.verbose {
		return ""
	}

	switch ev.Kind {
	case EventCreated:
		return fmt.Sprintf("%s: created %s", ev.ID, ev.Path)
	case EventBarrierReleased:
		if ev.Serial {
			return ev.ID + ": released (serial)"
		}

		return ev.ID + ": released"
	case EventOpened:
		return fmt.Sprintf("%s: opened %s (cycle %d)", ev.ID, ev.Path, ev.Iteration)
	case EventClosed:
		return fmt.Sprintf("%s: closed %s (cycle %d)", ev.ID, ev.Path, ev.Iteration)
	case EventDestroyed:
		return fmt.Sprintf("%s: destroyed %s", ev.ID, ev.Path)
	}

	return ""
}

func describeErr(ev Event) string {
	if ev.Errno != 0 {
		return fmt.Sprintf("errno %d (%v)", int(ev.Errno), ev.Err)
	}

	return fmt.Sprint(ev.Err)
}
