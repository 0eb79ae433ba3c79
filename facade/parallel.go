// File: facade/parallel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Data-parallel primitives. Inputs are split into ordinal chunks by the
// planner; each chunk runs as one task and writes to its own slot, so results
// follow input order whatever the completion order.

package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

// ItemError locates a failure inside a data-parallel call.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string { return fmt.Sprintf("item %d: %v", e.Index, e.Err) }
func (e *ItemError) Unwrap() error { return e.Err }

// Aggregate is the combined future of a data-parallel call.
type Aggregate[R any] struct {
	futures  []*Future
	flag     context.Context
	cancel   context.CancelFunc
	stop     func() bool
	assemble func(parts []any) (R, error)

	once  sync.Once
	value R
	err   error
}

// Chunks returns the number of chunk tasks.
func (a *Aggregate[R]) Chunks() int { return len(a.futures) }

// Done reports whether every chunk task is terminal.
func (a *Aggregate[R]) Done() bool {
	for _, f := range a.futures {
		if !f.Done() {
			return false
		}
	}
	return true
}

// Cancel cancels queued chunks and tells running chunks to stop at the next
// item. The aggregate then resolves to api.ErrCancelled. It returns false if
// every chunk had already finished.
func (a *Aggregate[R]) Cancel() bool {
	if a.Done() {
		return false
	}
	a.cancel()
	return true
}

func (a *Aggregate[R]) cancelChunks() {
	for _, f := range a.futures {
		f.Cancel()
	}
}

// Await waits for every chunk, then assembles the result. Called with a
// platform task's context the worker helps run chunks while it waits.
func (a *Aggregate[R]) Await(ctx context.Context) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, f := range a.futures {
		if _, err := f.Await(ctx); !f.Done() {
			var zero R
			return zero, err
		}
	}
	a.once.Do(a.resolve)
	return a.value, a.err
}

// Result waits up to timeout. With timeout <= 0 it waits forever and runs
// chunks that are still queued on the calling goroutine.
func (a *Aggregate[R]) Result(timeout time.Duration) (R, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.Await(ctx)
}

func (a *Aggregate[R]) resolve() {
	a.stop()
	defer a.cancel()
	if a.flag.Err() != nil {
		a.err = api.ErrCancelled
		return
	}
	parts := make([]any, len(a.futures))
	for i, f := range a.futures {
		v, err := f.Result(0)
		if err != nil {
			a.err = err
			return
		}
		parts[i] = v
	}
	a.value, a.err = a.assemble(parts)
}

// chunkFunc runs one chunk. flag is the aggregate's cancellation signal.
type chunkFunc func(ctx, flag context.Context, c concurrency.Chunk) (any, error)

func launch[R any](ctx context.Context, s *Scheduler, n int, o submitOptions, run chunkFunc, assemble func([]any) (R, error)) (*Aggregate[R], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	planner := s.tunables.Planner()
	planner.FixedSize = o.chunkSize
	chunks, err := concurrency.PlanChunks(n, s.NumWorkers(), planner)
	if err != nil {
		return nil, err
	}
	flag, cancel := context.WithCancel(ctx)
	a := &Aggregate[R]{
		futures:  make([]*Future, 0, len(chunks)),
		flag:     flag,
		cancel:   cancel,
		assemble: assemble,
	}
	for _, c := range chunks {
		f, err := s.engine.Submit(ctx, func(tctx context.Context) (any, error) {
			return run(tctx, flag, c)
		}, o.task())
		if err != nil {
			cancel()
			a.cancelChunks()
			return nil, err
		}
		a.futures = append(a.futures, f)
	}
	a.stop = context.AfterFunc(flag, a.cancelChunks)
	return a, nil
}

func stopped(ctx, flag context.Context) bool {
	return flag.Err() != nil || ctx.Err() != nil
}

// wait awaits a and cancels it when ctx ends first.
func wait[R any](ctx context.Context, a *Aggregate[R]) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	v, err := a.Await(ctx)
	if err != nil && ctx.Err() != nil {
		a.Cancel()
		if errors.Is(ctx.Err(), context.Canceled) {
			return v, api.ErrCancelled
		}
	}
	return v, err
}

func concat[T any](n int) func(parts []any) ([]T, error) {
	return func(parts []any) ([]T, error) {
		out := make([]T, 0, n)
		for _, p := range parts {
			out = append(out, p.([]T)...)
		}
		return out, nil
	}
}

// MapAsync starts fn over items and returns the aggregate without waiting.
// Within a chunk items are applied in order and the first failure stops the
// chunk.
func MapAsync[T, R any](ctx context.Context, s *Scheduler, fn func(ctx context.Context, item T) (R, error), items []T, opts ...SubmitOption) (*Aggregate[[]R], error) {
	o := s.submitOptions(opts)
	run := func(tctx, flag context.Context, c concurrency.Chunk) (any, error) {
		out := make([]R, 0, c.Len())
		for i := c.Start; i < c.End; i++ {
			if stopped(tctx, flag) {
				return nil, api.ErrCancelled
			}
			r, err := invoke(tctx, o.retry, func() (R, error) { return fn(tctx, items[i]) })
			if err != nil {
				return nil, &ItemError{Index: i, Err: err}
			}
			out = append(out, r)
		}
		return out, nil
	}
	return launch(ctx, s, len(items), o, run, concat[R](len(items)))
}

// Map applies fn to every item in parallel and returns results in input
// order. The first failure by input order is returned as *api.TaskError
// wrapping *ItemError, after every chunk has resolved.
func Map[T, R any](ctx context.Context, s *Scheduler, fn func(ctx context.Context, item T) (R, error), items []T, opts ...SubmitOption) ([]R, error) {
	a, err := MapAsync(ctx, s, fn, items, opts...)
	if err != nil {
		return nil, err
	}
	return wait(ctx, a)
}

// Starmap is Map over argument tuples.
func Starmap[R any](ctx context.Context, s *Scheduler, fn func(ctx context.Context, args ...any) (R, error), args [][]any, opts ...SubmitOption) ([]R, error) {
	return Map(ctx, s, func(ctx context.Context, a []any) (R, error) {
		return fn(ctx, a...)
	}, args, opts...)
}

// Filter keeps the items pred accepts, preserving input order.
func Filter[T any](ctx context.Context, s *Scheduler, pred func(ctx context.Context, item T) (bool, error), items []T, opts ...SubmitOption) ([]T, error) {
	o := s.submitOptions(opts)
	run := func(tctx, flag context.Context, c concurrency.Chunk) (any, error) {
		out := make([]T, 0, c.Len())
		for i := c.Start; i < c.End; i++ {
			if stopped(tctx, flag) {
				return nil, api.ErrCancelled
			}
			keep, err := invoke(tctx, o.retry, func() (bool, error) { return pred(tctx, items[i]) })
			if err != nil {
				return nil, &ItemError{Index: i, Err: err}
			}
			if keep {
				out = append(out, items[i])
			}
		}
		return out, nil
	}
	a, err := launch(ctx, s, len(items), o, run, concat[T](0))
	if err != nil {
		return nil, err
	}
	return wait(ctx, a)
}

// Reduce folds items with an associative combine. Each chunk folds from its
// first element; the partial results are then folded onto identity in chunk
// order, so identity is applied exactly once.
func Reduce[T any](ctx context.Context, s *Scheduler, combine func(ctx context.Context, acc, item T) (T, error), items []T, identity T, opts ...SubmitOption) (T, error) {
	o := s.submitOptions(opts)
	run := func(tctx, flag context.Context, c concurrency.Chunk) (any, error) {
		acc := items[c.Start]
		for i := c.Start + 1; i < c.End; i++ {
			if stopped(tctx, flag) {
				return nil, api.ErrCancelled
			}
			next, err := invoke(tctx, o.retry, func() (T, error) { return combine(tctx, acc, items[i]) })
			if err != nil {
				return nil, &ItemError{Index: i, Err: err}
			}
			acc = next
		}
		return acc, nil
	}
	assemble := func(parts []any) (T, error) {
		acc := identity
		for i, p := range parts {
			next, err := combine(ctx, acc, p.(T))
			if err != nil {
				return identity, fmt.Errorf("facade: combine partial %d: %w", i, err)
			}
			acc = next
		}
		return acc, nil
	}
	a, err := launch(ctx, s, len(items), o, run, assemble)
	if err != nil {
		return identity, err
	}
	v, err := wait(ctx, a)
	if err != nil {
		return identity, err
	}
	return v, nil
}

// MapCollect is Map in collect-errors mode: every item yields a Result and a
// failing or panicking item never stops its chunk. The error return is
// reserved for scheduling failures and cancellation.
func MapCollect[T, R any](ctx context.Context, s *Scheduler, fn func(ctx context.Context, item T) (R, error), items []T, opts ...SubmitOption) ([]api.Result[R], error) {
	o := s.submitOptions(opts)
	run := func(tctx, flag context.Context, c concurrency.Chunk) (any, error) {
		out := make([]api.Result[R], 0, c.Len())
		for i := c.Start; i < c.End; i++ {
			if stopped(tctx, flag) {
				return nil, api.ErrCancelled
			}
			r, err := invoke(tctx, o.retry, func() (R, error) { return protect(tctx, fn, items[i]) })
			if err != nil {
				err = &ItemError{Index: i, Err: err}
			}
			out = append(out, api.Result[R]{Value: r, Err: err})
		}
		return out, nil
	}
	a, err := launch(ctx, s, len(items), o, run, concat[api.Result[R]](len(items)))
	if err != nil {
		return nil, err
	}
	return wait(ctx, a)
}

func protect[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, item)
}

// Errors combines the item errors of a MapCollect result, or returns nil.
func Errors[R any](results []api.Result[R]) error {
	var err error
	for _, r := range results {
		err = multierr.Append(err, r.Err)
	}
	return err
}
