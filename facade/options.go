// File: facade/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

// SubmitOption tunes a single submission or data-parallel call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	priority  api.Priority
	blocking  bool
	retry     *RetryPolicy
	chunkSize int
}

func (s *Scheduler) submitOptions(opts []SubmitOption) submitOptions {
	o := submitOptions{priority: s.cfg.DefaultPriority}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o submitOptions) task() concurrency.TaskOptions {
	return concurrency.TaskOptions{Priority: o.priority, Blocking: o.blocking}
}

// WithPriority sets the scheduling priority; lower is more urgent.
// Ordering is best-effort.
func WithPriority(p api.Priority) SubmitOption {
	return func(o *submitOptions) { o.priority = p }
}

// WithBlocking routes the work to the blocking pool.
func WithBlocking() SubmitOption {
	return func(o *submitOptions) { o.blocking = true }
}

// WithRetry retries failing work with exponential backoff. For data-parallel
// calls the policy applies to each item.
func WithRetry(p RetryPolicy) SubmitOption {
	return func(o *submitOptions) { o.retry = &p }
}

// WithChunkSize fixes the chunk size of a data-parallel call.
func WithChunkSize(n int) SubmitOption {
	return func(o *submitOptions) { o.chunkSize = n }
}
