// File: internal/concurrency/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/momentics/hioload-vt/api"
)

// Future is the result handle of a Task. The done channel is closed exactly
// once, after value and err are set, so any number of goroutines may wait.
type Future struct {
	task  *Task
	done  chan struct{}
	value any
	err   error
}

func (f *Future) ID() uint64           { return f.task.id }
func (f *Future) State() api.TaskState { return f.task.State() }

// C is closed when the task reaches a terminal state.
func (f *Future) C() <-chan struct{} { return f.done }

// Done reports whether the task is terminal.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Cancelled reports whether the task ended in the Cancelled state.
func (f *Future) Cancelled() bool {
	return f.Done() && f.State() == api.TaskCancelled
}

// Cancel prevents a queued task from ever running and returns true. For a
// running task it cancels the task context and returns false; the payload
// decides whether to stop. Terminal tasks are left alone.
func (f *Future) Cancel() bool {
	if f.task.cancelQueued() {
		return true
	}
	if f.State() == api.TaskRunning {
		f.task.cancel()
	}
	return false
}

// Result waits up to timeout for the outcome. A timeout <= 0 waits forever;
// if the task is a CPU task still queued, the caller runs it itself. On expiry
// it returns ErrDeadlineExceeded and leaves the task untouched.
func (f *Future) Result(timeout time.Duration) (any, error) {
	if timeout <= 0 {
		if !f.Done() {
			f.task.help()
		}
		<-f.done
		return f.value, f.err
	}
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		return nil, api.ErrDeadlineExceeded.WithContext("task_id", f.task.id)
	}
}

// Err waits like Result(0) and returns only the task's error. A cancelled
// task reports api.ErrCancelled.
func (f *Future) Err() error {
	_, err := f.Result(0)
	return err
}

// Await waits for the outcome or for ctx. Called from inside a platform task
// with that task's context, the worker keeps executing queued tasks while it
// waits instead of blocking its thread. Called with a context that never ends,
// or from a task running off the platform pool, a still queued CPU task runs
// on the caller.
func (f *Future) Await(ctx context.Context) (any, error) {
	if f.Done() {
		return f.value, f.err
	}
	if w := workerFromContext(ctx); w != nil {
		if w.helpUntil(f.done, ctx.Done()) {
			return f.value, f.err
		}
		return nil, contextError(ctx)
	}
	if ctx.Done() == nil || (f.task.owner != nil && helperFromContext(ctx) == f.task.owner) {
		f.task.help()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, contextError(ctx)
	}
}

func contextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", api.ErrDeadlineExceeded, err)
	}
	return err
}
