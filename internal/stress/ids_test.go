package stress_test

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/calvinalkan/poolstress/internal/stress"
)

func Test_IDSource_Never_Repeats_A_Path_When_Called_Concurrently(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	unique := func(src stress.IDSource, goroutines, perGoroutine int) bool {
		var (
			mu   sync.Mutex
			seen = make(map[string]struct{})
			bad  bool
			wg   sync.WaitGroup
		)

		for range goroutines {
			wg.Go(func() {
				for range perGoroutine {
					p := stress.PoolPath("/tmp/pool", src.Next())

					mu.Lock()
					if !stress.IsPoolPath("/tmp/pool", p) {
						bad = true
					}

					if _, ok := seen[p]; ok {
						bad = true
					}

					seen[p] = struct{}{}
					mu.Unlock()
				}
			})
		}

		wg.Wait()

		return !bad && len(seen) == goroutines*perGoroutine
	}

	properties.Property("sequence paths are unique and sweepable", prop.ForAll(
		func(goroutines, perGoroutine int) bool {
			return unique(stress.NewSequence(), goroutines, perGoroutine)
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 50),
	))

	properties.Property("process scoped paths are unique and sweepable", prop.ForAll(
		func(goroutines, perGoroutine int) bool {
			return unique(stress.NewProcessScoped(), goroutines, perGoroutine)
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func Test_Sequence_Starts_At_One(t *testing.T) {
	t.Parallel()

	s := stress.NewSequence()

	for _, want := range []string{"1", "2", "3"} {
		if got := s.Next(); got != want {
			t.Fatalf("Next()=%q, want %q", got, want)
		}
	}

	if got := stress.PoolPath("/mnt/pool", "7"); got != "/mnt/pool-7" {
		t.Fatalf("PoolPath=%q, want /mnt/pool-7", got)
	}
}

func Test_NewIDSource_Rejects_Unknown_Scheme(t *testing.T) {
	t.Parallel()

	for _, scheme := range []string{"", "seq", "pid"} {
		if _, ok := stress.NewIDSource(scheme); !ok {
			t.Fatalf("NewIDSource(%q) rejected", scheme)
		}
	}

	if _, ok := stress.NewIDSource("tid"); ok {
		t.Fatal("NewIDSource(tid) accepted")
	}
}

func Test_IsPoolPath_Matches_Only_Worker_Ids(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"/p/pool-1":           true,
		"/p/pool-1234.17":     true,
		"/p/pool-report.json": false,
		"/p/pool-12.txt":      false,
		"/p/pool-1.2.3":       false,
		"/p/pool-":            false,
		"/p/other-1":          false,
	} {
		if got := stress.IsPoolPath("/p/pool", path); got != want {
			t.Fatalf("IsPoolPath(%q)=%v, want %v", path, got, want)
		}
	}
}
