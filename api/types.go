// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// TaskState enumerates the lifecycle of a scheduled task. Transitions only
// move forward: Queued -> Running -> terminal, or Queued -> Cancelled.
type TaskState int32

const (
	TaskQueued TaskState = iota
	TaskRunning
	TaskCompleted
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Priority orders submissions; lower values are more urgent.
type Priority uint8

const (
	PriorityHighest Priority = 0
	PriorityDefault Priority = 128
	PriorityLowest  Priority = 255
)
