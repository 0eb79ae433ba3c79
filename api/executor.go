// Package api
// Author: momentics
//
// Executor contract for collaborators that hand work to the scheduler.

package api

import "context"

// Work is the invocable capability the scheduler runs. The context is
// cancelled when the task is cancelled or the scheduler stops; long payloads
// should poll it.
type Work func(ctx context.Context) (any, error)

// Awaitable is the read side of a scheduled task.
type Awaitable interface {
	ID() uint64
	Done() bool
	C() <-chan struct{}
	Await(ctx context.Context) (any, error)
	Cancel() bool
}

// Executor abstracts task dispatch for cache engines, I/O layers and other
// collaborators that contain no scheduling logic themselves.
type Executor interface {
	GracefulShutdown

	// Submit schedules work with default priority on the platform pool.
	Submit(work Work) (Awaitable, error)

	// SubmitBlocking schedules work on the elastic blocking pool.
	SubmitBlocking(work Work) (Awaitable, error)

	// NumWorkers returns the fixed number of platform threads.
	NumWorkers() int
}
