// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the scheduler, its pools and collaborators.

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by the scheduler matches one of them
// through errors.Is, except user errors which arrive wrapped in *TaskError.
var (
	ErrConfig           = NewError(ErrCodeConfig, "invalid scheduler configuration")
	ErrCancelled        = NewError(ErrCodeCancelled, "task cancelled")
	ErrDeadlineExceeded = NewError(ErrCodeDeadlineExceeded, "result deadline exceeded")
	ErrPoolShutdown     = NewError(ErrCodeShutdown, "scheduler is shut down")
	ErrPoolInternal     = NewError(ErrCodeInternal, "worker thread failure")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeConfig
	ErrCodeTask
	ErrCodeCancelled
	ErrCodeDeadlineExceeded
	ErrCodeShutdown
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeConfig:
		return "config"
	case ErrCodeTask:
		return "task"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeDeadlineExceeded:
		return "deadline_exceeded"
	case ErrCodeShutdown:
		return "shutdown"
	case ErrCodeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is matches any *Error carrying the same code, so a contextualised copy
// still satisfies errors.Is against the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a copy of the error with an extra context entry.
// Sentinels are shared, so the receiver is never mutated.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// TaskError wraps a failure raised by user code. It is scoped to the Future
// of the task that produced it.
type TaskError struct {
	TaskID uint64
	Err    error
	// Panic holds the recovered value when the payload panicked.
	Panic any
}

func (e *TaskError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("task %d panicked: %v", e.TaskID, e.Panic)
	}
	return fmt.Sprintf("task %d failed: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Code reports ErrCodeTask, or the code of a wrapped *Error such as
// ErrPoolInternal for tasks lost with their worker.
func (e *TaskError) Code() ErrorCode {
	var apiErr *Error
	if errors.As(e.Err, &apiErr) {
		return apiErr.Code
	}
	return ErrCodeTask
}

// CodeOf extracts the ErrorCode carried by err.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Code()
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrCodeTask
}
