// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform worker loop: local deque, injector batch, steal, park.

package concurrency

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/momentics/hioload-vt/affinity"
)

type workerKey struct{}

// worker is one platform thread of a ThreadPool.
type worker struct {
	id      int
	pool    *ThreadPool
	deque   *WorkerDeque
	backoff idleBackoff
	// depth counts nested executions on this goroutine (helping Awaits).
	depth int
}

func workerFromContext(ctx context.Context) *worker {
	if ctx == nil {
		return nil
	}
	w, _ := ctx.Value(workerKey{}).(*worker)
	return w
}

// WorkerID reports the platform worker executing the task that owns ctx.
func WorkerID(ctx context.Context) (int, bool) {
	if w := workerFromContext(ctx); w != nil {
		return w.id, true
	}
	return 0, false
}

// run is the goroutine body. The goroutine stays locked to its OS thread for
// its whole life; when a task kills it the thread is discarded and a fresh
// goroutine takes over the same id and deque.
func (w *worker) run() {
	runtime.LockOSThread()
	p := w.pool
	if p.cfg.PinThreads {
		cpu := affinity.CPUForWorker(w.id)
		if err := affinity.SetAffinity(cpu); err != nil {
			p.log.Warnw("thread pinning failed", "worker", w.id, "cpu", cpu, "error", err)
		}
	}
	clean := false
	defer func() {
		if !clean {
			p.replace(w)
			return
		}
		runtime.UnlockOSThread()
		p.wg.Done()
	}()
	w.backoff = newIdleBackoff(p.cfg.SpinIterations)
	w.loop()
	clean = true
}

func (w *worker) loop() {
	p := w.pool
	for {
		if t := w.find(); t != nil {
			w.execute(t)
			w.backoff.reset()
			continue
		}
		if p.exitable() {
			return
		}
		if !w.backoff.wait() {
			w.park()
		}
	}
}

// find returns the next task: own deque bottom, then an injector batch, then
// the top of a peer deque.
func (w *worker) find() *Task {
	if t, ok := w.deque.PopBottom(); ok {
		return t
	}
	p := w.pool
	if batch := p.injector.PopBatch(p.cfg.InjectorBatch); len(batch) > 0 {
		// Reverse order keeps batch[1] at the bottom for equal priorities.
		for i := len(batch) - 1; i > 0; i-- {
			w.deque.PushBottom(batch[i])
		}
		if len(batch) > 1 {
			p.signal()
		}
		return batch[0]
	}
	return w.steal()
}

func (w *worker) steal() *Task {
	deques := w.pool.deques
	n := len(deques)
	if n < 2 {
		return nil
	}
	start := rand.IntN(n)
	for i := 0; i < n; i++ {
		v := (start + i) % n
		if v == w.id {
			continue
		}
		if t, ok := deques[v].StealTop(); ok {
			w.pool.counters.stolen.Add(1)
			return t
		}
	}
	return nil
}

func (w *worker) execute(t *Task) {
	p := w.pool
	p.counters.active.Add(1)
	p.counters.queued.Add(-1)
	p.pending.Add(-1)
	if t.claim() {
		w.depth++
		t.run(context.WithValue(t.ctx, workerKey{}, w))
		w.depth--
	}
	p.counters.active.Add(-1)
}

func (w *worker) park() {
	p := w.pool
	p.idle.Add(1)
	if p.pending.Load() == 0 {
		timer := time.NewTimer(p.cfg.ParkTimeout)
		select {
		case <-p.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
	p.idle.Add(-1)
	w.backoff.reset()
}

// helpUntil runs queued tasks on the calling worker until done or abort is
// closed. It reports whether done closed. ctx must be awaited on the
// goroutine executing the owning task.
func (w *worker) helpUntil(done, abort <-chan struct{}) bool {
	p := w.pool
	b := newIdleBackoff(p.cfg.SpinIterations)
	for {
		select {
		case <-done:
			return true
		case <-abort:
			return false
		default:
		}
		if t := w.find(); t != nil {
			w.execute(t)
			b.reset()
			continue
		}
		if b.wait() {
			continue
		}
		timer := time.NewTimer(p.cfg.ParkTimeout)
		select {
		case <-done:
			timer.Stop()
			return true
		case <-abort:
			timer.Stop()
			return false
		case <-p.wake:
		case <-timer.C:
		}
		timer.Stop()
		b.reset()
	}
}
