// File: internal/concurrency/deque.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "sync"

const minDequeCapacity = 16

// WorkerDeque is the per-worker double-ended task queue. The owner pushes
// and pops at the bottom; thieves steal from the top. Bottom-side insertion
// keeps the segment near the bottom ordered by priority, so the owner always
// pops the most urgent task it holds; equal priorities pop newest first.
type WorkerDeque struct {
	mu   sync.Mutex
	buf  []*Task // ring buffer, power-of-two length
	head int     // index of the top element
	n    int
}

// NewWorkerDeque returns an empty deque.
func NewWorkerDeque() *WorkerDeque {
	return &WorkerDeque{buf: make([]*Task, minDequeCapacity)}
}

func (d *WorkerDeque) at(i int) int {
	return (d.head + i) & (len(d.buf) - 1)
}

func (d *WorkerDeque) grow() {
	next := make([]*Task, len(d.buf)*2)
	for i := 0; i < d.n; i++ {
		next[i] = d.buf[d.at(i)]
	}
	d.buf = next
	d.head = 0
}

// PushBottom inserts t below every queued task of equal or lower urgency.
func (d *WorkerDeque) PushBottom(t *Task) {
	d.mu.Lock()
	if d.n == len(d.buf) {
		d.grow()
	}
	pos := d.n
	for pos > 0 && d.buf[d.at(pos-1)].priority < t.priority {
		d.buf[d.at(pos)] = d.buf[d.at(pos-1)]
		pos--
	}
	d.buf[d.at(pos)] = t
	d.n++
	d.mu.Unlock()
}

// PopBottom removes the owner-side task.
func (d *WorkerDeque) PopBottom() (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == 0 {
		return nil, false
	}
	i := d.at(d.n - 1)
	t := d.buf[i]
	d.buf[i] = nil
	d.n--
	return t, true
}

// StealTop removes the oldest, least urgent task.
func (d *WorkerDeque) StealTop() (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == 0 {
		return nil, false
	}
	t := d.buf[d.head]
	d.buf[d.head] = nil
	d.head = d.at(1)
	d.n--
	return t, true
}

// Len returns the current depth.
func (d *WorkerDeque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// Drain removes every task, top first.
func (d *WorkerDeque) Drain() []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Task, 0, d.n)
	for i := 0; i < d.n; i++ {
		j := d.at(i)
		out = append(out, d.buf[j])
		d.buf[j] = nil
	}
	d.head, d.n = 0, 0
	return out
}
