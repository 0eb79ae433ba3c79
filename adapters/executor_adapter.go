// File: adapters/executor_adapter.go
// Package adapters provides glue between internal concurrency and api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements the api.Executor interface by delegating to the
// scheduling engine, for collaborators that only need fire-and-await
// submission.

package adapters

import (
	"context"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

// ExecutorAdapter wraps a concurrency.Engine to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	engine   *concurrency.Engine
	priority api.Priority
	shutdown func(wait bool) error
}

// ExecutorOption customises NewExecutorAdapter.
type ExecutorOption func(*ExecutorAdapter)

// WithShutdown routes Shutdown through fn instead of the engine, so the owner
// of the engine can release its own resources.
func WithShutdown(fn func(wait bool) error) ExecutorOption {
	return func(ea *ExecutorAdapter) { ea.shutdown = fn }
}

// NewExecutorAdapter submits with the engine's configured default priority.
func NewExecutorAdapter(engine *concurrency.Engine, opts ...ExecutorOption) api.Executor {
	ea := &ExecutorAdapter{
		engine:   engine,
		priority: engine.Config().DefaultPriority,
		shutdown: engine.Shutdown,
	}
	for _, opt := range opts {
		opt(ea)
	}
	return ea
}

// Submit dispatches CPU-bound work to the platform pool.
func (ea *ExecutorAdapter) Submit(work api.Work) (api.Awaitable, error) {
	return ea.submit(work, false)
}

// SubmitBlocking dispatches work to the blocking pool.
func (ea *ExecutorAdapter) SubmitBlocking(work api.Work) (api.Awaitable, error) {
	return ea.submit(work, true)
}

func (ea *ExecutorAdapter) submit(work api.Work, blocking bool) (api.Awaitable, error) {
	f, err := ea.engine.Submit(context.Background(), work, concurrency.TaskOptions{
		Priority: ea.priority,
		Blocking: blocking,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NumWorkers returns the platform pool size.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.engine.NumWorkers()
}

// Shutdown stops the engine with its configured policy.
func (ea *ExecutorAdapter) Shutdown(wait bool) error {
	return ea.shutdown(wait)
}
