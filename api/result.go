// Package api
// Author: momentics@gmail.com
//
// Generic result and error propagation.

package api

// Result wraps any payload or error. Collect-errors aggregates return one
// Result per input item.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool { return r.Err == nil }
