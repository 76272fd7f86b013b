package stress

import (
	"syscall"
	"time"
)

// EventKind identifies a worker state transition.
type EventKind int

// Event kinds in the order a successful worker emits them.
const (
	EventCreating EventKind = iota + 1
	EventCreated
	EventCreateFailed
	EventBarrierWait
	EventBarrierReleased
	EventOpened
	EventOpenFailed
	EventClosed
	EventCloseFailed
	EventDestroying
	EventDestroyed
	EventAborted
	EventFatal
	EventSwept
)

var eventNames = [...]string{
	EventCreating:        "creating",
	EventCreated:         "created",
	EventCreateFailed:    "create-failed",
	EventBarrierWait:     "barrier-wait",
	EventBarrierReleased: "barrier-released",
	EventOpened:          "opened",
	EventOpenFailed:      "open-failed",
	EventClosed:          "closed",
	EventCloseFailed:     "close-failed",
	EventDestroying:      "destroying",
	EventDestroyed:       "destroyed",
	EventAborted:         "aborted",
	EventFatal:           "fatal",
	EventSwept:           "swept",
}

func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}

	return "unknown"
}

// Event describes one worker state transition.
//
// Worker is -1 for harness-level events (sweep, fatal outside a worker).
// Iteration is the cycle index for open/close events and -1 otherwise.
type Event struct {
	Kind      EventKind
	Worker    int
	ID        string
	Path      string
	Iteration int
	Serial    bool
	Err       error
	Errno     syscall.Errno
	Time      time.Time
}

// Observer receives worker events. Observe is called concurrently from
// every worker goroutine and must not block for long.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(ev Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to every element in order.
type Observers []Observer

// Observe forwards ev to every non-nil observer.
func (obs Observers) Observe(ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ev)
		}
	}
}

var discardObserver = ObserverFunc(func(Event) {})
