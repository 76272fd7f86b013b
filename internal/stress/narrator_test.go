package stress

import (
	"bytes"
	"errors"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Narrator_Prints_Operator_Lines_When_Not_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	n := NewNarrator(&buf, false)
	createErr := &Failure{Op: "create", Iteration: -1, Err: syscall.EEXIST}

	for _, ev := range []Event{
		{Kind: EventCreating, ID: "1", Path: "/p-1"},
		{Kind: EventCreated, ID: "1", Path: "/p-1"},
		{Kind: EventCreateFailed, ID: "2", Path: "/p-2", Err: createErr, Errno: syscall.EEXIST},
		{Kind: EventBarrierWait, ID: "1"},
		{Kind: EventBarrierReleased, ID: "1", Serial: true},
		{Kind: EventOpened, ID: "1", Path: "/p-1", Iteration: 0},
		{Kind: EventOpenFailed, ID: "1", Path: "/p-1", Iteration: 1, Err: errors.New("bad")},
		{Kind: EventDestroying, ID: "1", Path: "/p-1"},
		{Kind: EventDestroyed, ID: "1", Path: "/p-1"},
		{Kind: EventSwept, Worker: -1, Path: "/p-9"},
	} {
		n.Observe(ev)
	}

	want := "1: creating /p-1\n" +
		"2: failed to create /p-2: errno 17 (create: file exists)\n" +
		"1: waiting for barrier\n" +
		"1: failed to open /p-1 (cycle 1): bad\n" +
		"1: destroying /p-1\n" +
		"swept stale pool /p-9\n"

	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("narration mismatch (-want +got):\n%s", diff)
	}
}

func Test_Narrator_Prints_Every_Transition_When_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	n := NewNarrator(&buf, true)

	for _, ev := range []Event{
		{Kind: EventCreated, ID: "1", Path: "/p-1"},
		{Kind: EventBarrierReleased, ID: "1", Serial: true},
		{Kind: EventBarrierReleased, ID: "2"},
		{Kind: EventOpened, ID: "1", Path: "/p-1", Iteration: 0},
		{Kind: EventClosed, ID: "1", Path: "/p-1", Iteration: 0},
		{Kind: EventDestroyed, ID: "1", Path: "/p-1"},
	} {
		n.Observe(ev)
	}

	want := "1: created /p-1\n" +
		"1: released (serial)\n" +
		"2: released\n" +
		"1: opened /p-1 (cycle 0)\n" +
		"1: closed /p-1 (cycle 0)\n" +
		"1: destroyed /p-1\n"

	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("narration mismatch (-want +got):\n%s", diff)
	}
}

func Test_EventKind_String_Returns_Unknown_When_Out_Of_Range(t *testing.T) {
	t.Parallel()

	if got := EventSwept.String(); got != "swept" {
		t.Fatalf("String()=%q, want swept", got)
	}

	if got := EventKind(0).String(); got != "unknown" {
		t.Fatalf("String()=%q, want unknown", got)
	}
}
