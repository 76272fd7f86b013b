// Package stress runs the concurrent pool-lifecycle stress test.
//
// A [Harness] starts one goroutine per worker. Each worker derives a unique
// pool path, pre-allocates the backing file, creates a pool in it through a
// [Backend], closes it and waits at a shared [Barrier]. Once every worker
// has arrived, all of them open and close their own pool a fixed number of
// times concurrently, then remove the backing file.
//
// Two kinds of failure are kept apart:
//
//   - Backend failures (create or open fails) are what the test looks for.
//     They are recorded in the worker's [Result], reported to observers and
//     end that worker's cycling early. They never fail [Harness.Run].
//   - Environment failures (backing file cannot be created, allocated or
//     removed, barrier misuse, a panicking worker) mean the test itself
//     cannot be trusted. They abort the run and are returned from
//     [Harness.Run] as a [*FatalError].
package stress
