// File: facade/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"
	"fmt"
	"sync"

	"github.com/momentics/hioload-vt/api"
)

var (
	defaultMu    sync.Mutex
	defaultSched *Scheduler
)

// Default returns the process-wide scheduler, creating it with
// DefaultConfig on first use or after ShutdownDefault.
func Default() *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSched == nil {
		s, err := New(api.DefaultConfig(), WithID("default"))
		if err != nil {
			panic(fmt.Sprintf("facade: default scheduler: %v", err))
		}
		defaultSched = s
	}
	return defaultSched
}

// ShutdownDefault drains and stops the default scheduler if it exists.
func ShutdownDefault() error {
	defaultMu.Lock()
	s := defaultSched
	defaultSched = nil
	defaultMu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// Go submits work to the default scheduler.
func Go(work api.Work, opts ...SubmitOption) (*Future, error) {
	return Default().Submit(work, opts...)
}

// GoContext submits work to the default scheduler. A task context makes
// the submission nested, as with SubmitContext.
func GoContext(ctx context.Context, work api.Work, opts ...SubmitOption) (*Future, error) {
	return Default().SubmitContext(ctx, work, opts...)
}

// ParallelMap runs Map on the default scheduler.
func ParallelMap[T, R any](ctx context.Context, fn func(ctx context.Context, item T) (R, error), items []T, opts ...SubmitOption) ([]R, error) {
	return Map(ctx, Default(), fn, items, opts...)
}
