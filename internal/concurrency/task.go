// File: internal/concurrency/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-vt/api"
)

// TaskOptions selects routing and ordering for a submission.
type TaskOptions struct {
	Priority api.Priority
	Blocking bool
}

// TaskInfo describes a finished task for observers.
type TaskInfo struct {
	ID        uint64
	Priority  api.Priority
	Blocking  bool
	State     api.TaskState
	Submitted time.Time
	Started   time.Time
	Finished  time.Time
}

// Wait is the time the task spent queued. Zero for tasks that never started.
func (i TaskInfo) Wait() time.Duration {
	if i.Started.IsZero() {
		return 0
	}
	return i.Started.Sub(i.Submitted)
}

// Run is the execution time of the payload.
func (i TaskInfo) Run() time.Duration {
	if i.Started.IsZero() {
		return 0
	}
	return i.Finished.Sub(i.Started)
}

// Task is one schedulable unit of work. Its state only moves forward and the
// payload runs at most once: whoever wins the Queued->Running transition owns
// execution.
type Task struct {
	id        uint64
	priority  api.Priority
	blocking  bool
	work      api.Work
	submitted time.Time
	started   time.Time
	finished  time.Time

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	// slot is set when the task holds a semaphore unit of the outstanding cap.
	slot   bool
	owner  *Engine
	future *Future
	onDone func(*Task)
}

// helperKey marks the context of a task running outside the platform pool,
// on a blocking worker or on a waiter that claimed it. The value is the
// owning *Engine.
type helperKey struct{}

func helperContext(t *Task) context.Context {
	return context.WithValue(t.ctx, helperKey{}, t.owner)
}

func helperFromContext(ctx context.Context) *Engine {
	if ctx == nil {
		return nil
	}
	e, _ := ctx.Value(helperKey{}).(*Engine)
	return e
}

func newTask(id uint64, parent context.Context, work api.Work, opts TaskOptions, onDone func(*Task)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		id:        id,
		priority:  opts.Priority,
		blocking:  opts.Blocking,
		work:      work,
		submitted: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		onDone:    onDone,
	}
	t.future = &Future{task: t, done: make(chan struct{})}
	return t
}

func (t *Task) ID() uint64             { return t.id }
func (t *Task) Priority() api.Priority { return t.priority }
func (t *Task) Blocking() bool         { return t.blocking }
func (t *Task) Submitted() time.Time   { return t.submitted }
func (t *Task) Future() *Future        { return t.future }

func (t *Task) State() api.TaskState {
	return api.TaskState(t.state.Load())
}

// Info is only meaningful once the task is terminal.
func (t *Task) Info() TaskInfo {
	return TaskInfo{
		ID:        t.id,
		Priority:  t.priority,
		Blocking:  t.blocking,
		State:     t.State(),
		Submitted: t.submitted,
		Started:   t.started,
		Finished:  t.finished,
	}
}

// claim moves the task to Running. False means it was cancelled first.
func (t *Task) claim() bool {
	if !t.state.CompareAndSwap(int32(api.TaskQueued), int32(api.TaskRunning)) {
		return false
	}
	t.started = time.Now()
	return true
}

// help runs a queued CPU task on the calling goroutine and reports whether it
// did. Blocking tasks are left to the blocking pool.
func (t *Task) help() bool {
	if t.blocking || t.owner == nil || !t.claim() {
		return false
	}
	t.owner.runHelped(t)
	return true
}

// cancelQueued resolves a task that has not started yet.
func (t *Task) cancelQueued() bool {
	if !t.state.CompareAndSwap(int32(api.TaskQueued), int32(api.TaskCancelled)) {
		return false
	}
	t.resolve(api.TaskCancelled, nil, api.ErrCancelled.WithContext("task_id", t.id))
	return true
}

// run executes the payload on the calling goroutine. Panics are recovered
// into a TaskError. If the payload calls runtime.Goexit the goroutine keeps
// unwinding after the task is failed with ErrPoolInternal; the caller's own
// deferred handlers deal with the dying worker.
func (t *Task) run(ctx context.Context) {
	returned := false
	defer func() {
		if returned {
			return
		}
		if r := recover(); r != nil {
			t.resolve(api.TaskFailed, nil, &api.TaskError{
				TaskID: t.id,
				Err:    fmt.Errorf("panic: %v", r),
				Panic:  r,
			})
			return
		}
		t.resolve(api.TaskFailed, nil, &api.TaskError{
			TaskID: t.id,
			Err:    api.ErrPoolInternal.WithContext("task_id", t.id),
		})
	}()
	v, err := t.work(ctx)
	returned = true
	t.settle(v, err)
}

func (t *Task) settle(v any, err error) {
	switch {
	case err == nil:
		t.resolve(api.TaskCompleted, v, nil)
	case t.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, api.ErrCancelled)):
		// The payload honoured a cancellation request.
		t.resolve(api.TaskCancelled, nil, api.ErrCancelled.WithContext("task_id", t.id))
	default:
		t.resolve(api.TaskFailed, nil, &api.TaskError{TaskID: t.id, Err: err})
	}
}

// resolve publishes the outcome. Hooks run before the done channel closes so
// observers of the Future also observe updated counters.
func (t *Task) resolve(state api.TaskState, v any, err error) {
	f := t.future
	f.value, f.err = v, err
	t.finished = time.Now()
	t.state.Store(int32(state))
	t.cancel()
	if t.onDone != nil {
		t.onDone(t)
	}
	close(f.done)
}
