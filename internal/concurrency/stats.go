// File: internal/concurrency/stats.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-vt/api"
)

// Counters aggregates engine statistics. Hot counters sit on their own cache
// lines; workers on different cores update them concurrently.
//
// Queued is incremented before a task becomes visible in any queue and
// decremented only after Active has been incremented for it, so a reader that
// loads Active before Queued never sees an idle engine while work is in flight.
type Counters struct {
	created   atomic.Uint64
	_         cpu.CacheLinePad
	active    atomic.Int64
	_         cpu.CacheLinePad
	queued    atomic.Int64
	_         cpu.CacheLinePad
	completed atomic.Uint64
	_         cpu.CacheLinePad
	failed    atomic.Uint64
	cancelled atomic.Uint64
	stolen    atomic.Uint64
	inline    atomic.Uint64
	replaced  atomic.Uint64
}

// idle reports whether no task is queued or running.
func (c *Counters) idle() bool {
	return c.active.Load() == 0 && c.queued.Load() == 0
}

func (c *Counters) record(state api.TaskState) {
	switch state {
	case api.TaskCompleted:
		c.completed.Add(1)
	case api.TaskFailed:
		c.completed.Add(1)
		c.failed.Add(1)
	case api.TaskCancelled:
		c.cancelled.Add(1)
	}
}

// Snapshot copies the counters into an api.Stats.
func (c *Counters) Snapshot() api.Stats {
	return api.Stats{
		Created:   c.created.Load(),
		Active:    c.active.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Cancelled: c.cancelled.Load(),
		Stolen:    c.stolen.Load(),
		Queued:    c.queued.Load(),
		Inline:    c.inline.Load(),
		Replaced:  c.replaced.Load(),
	}
}
