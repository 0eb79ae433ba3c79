// File: facade/typed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"
	"fmt"
	"time"
)

// TypedFuture is a Future whose value has a static type.
type TypedFuture[T any] struct {
	*Future
}

// Result is Future.Result with the value asserted to T.
func (f *TypedFuture[T]) Result(timeout time.Duration) (T, error) {
	return typed[T](f.Future.Result(timeout))
}

// Await is Future.Await with the value asserted to T.
func (f *TypedFuture[T]) Await(ctx context.Context) (T, error) {
	return typed[T](f.Future.Await(ctx))
}

func typed[T any](v any, err error) (T, error) {
	var zero T
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("facade: result type %T is not %T", v, zero)
	}
	return t, nil
}

// Spawn submits a typed callable.
func Spawn[T any](s *Scheduler, fn func(ctx context.Context) (T, error), opts ...SubmitOption) (*TypedFuture[T], error) {
	return SpawnContext(context.Background(), s, fn, opts...)
}

// SpawnContext submits a typed callable; see Scheduler.SubmitContext.
func SpawnContext[T any](ctx context.Context, s *Scheduler, fn func(ctx context.Context) (T, error), opts ...SubmitOption) (*TypedFuture[T], error) {
	f, err := s.SubmitContext(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &TypedFuture[T]{Future: f}, nil
}
