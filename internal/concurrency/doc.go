// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency is the scheduling engine behind hioload-vt.
//
// A fixed pool of platform workers, each locked to an OS thread, runs
// CPU-bound tasks. Every worker owns a WorkerDeque; external submissions land
// in a priority-banded Injector. Idle workers take from their own deque, then
// grab a batch from the Injector, then steal from the top of a peer deque,
// and finally park. Blocking tasks go to an elastic BlockingPool and never
// occupy a platform worker.
//
// PlanChunks partitions data-parallel inputs for the facade primitives.
package concurrency
