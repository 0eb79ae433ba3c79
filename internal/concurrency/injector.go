// File: internal/concurrency/injector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"slices"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-vt/api"
)

// Injector is the global entry queue for external submissions. Tasks are
// banded by priority; each band is FIFO. Pops always serve the most urgent
// non-empty band.
type Injector struct {
	mu    sync.Mutex
	bands map[api.Priority]*queue.Queue
	order []api.Priority // non-empty bands, ascending
	n     int
}

// NewInjector returns an empty injector.
func NewInjector() *Injector {
	return &Injector{bands: make(map[api.Priority]*queue.Queue)}
}

// Push appends t to its priority band.
func (q *Injector) Push(t *Task) {
	q.mu.Lock()
	band, ok := q.bands[t.priority]
	if !ok {
		band = queue.New()
		q.bands[t.priority] = band
		i, _ := slices.BinarySearch(q.order, t.priority)
		q.order = slices.Insert(q.order, i, t.priority)
	}
	band.Add(t)
	q.n++
	q.mu.Unlock()
}

func (q *Injector) popLocked() *Task {
	p := q.order[0]
	band := q.bands[p]
	t := band.Remove().(*Task)
	if band.Length() == 0 {
		delete(q.bands, p)
		q.order = q.order[1:]
	}
	q.n--
	return t
}

// Pop removes the oldest task of the most urgent band.
func (q *Injector) Pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// PopBatch removes up to limit tasks in pop order.
func (q *Injector) PopBatch(limit int) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 || limit <= 0 {
		return nil
	}
	out := make([]*Task, 0, min(limit, q.n))
	for len(out) < limit && q.n > 0 {
		out = append(out, q.popLocked())
	}
	return out
}

// Len returns the number of queued tasks.
func (q *Injector) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Drain removes every queued task in pop order.
func (q *Injector) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, 0, q.n)
	for q.n > 0 {
		out = append(out, q.popLocked())
	}
	return out
}
