// File: internal/concurrency/threadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool is the fixed-size platform pool with work-stealing deques.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-vt/api"
)

const (
	stateRunning int32 = iota
	stateDraining
	stateStopping
)

// ThreadPoolConfig sizes and tunes a ThreadPool.
type ThreadPoolConfig struct {
	Workers        int
	InjectorBatch  int
	SpinIterations int
	ParkTimeout    time.Duration
	PinThreads     bool
}

// ThreadPool runs CPU-bound tasks on a fixed set of goroutines, each locked
// to its own OS thread.
type ThreadPool struct {
	cfg      ThreadPoolConfig
	counters *Counters
	injector *Injector
	deques   []*WorkerDeque
	workers  []*worker

	wake    chan struct{}
	state   atomic.Int32
	idle    atomic.Int32
	pending atomic.Int64 // tasks queued in this pool
	wg      sync.WaitGroup
	log     *zap.SugaredLogger
}

// NewThreadPool starts cfg.Workers platform workers. A non-positive count
// selects runtime.NumCPU().
func NewThreadPool(cfg ThreadPoolConfig, counters *Counters, log *zap.SugaredLogger) *ThreadPool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.InjectorBatch <= 0 {
		cfg.InjectorBatch = 1
	}
	if cfg.ParkTimeout <= 0 {
		cfg.ParkTimeout = 10 * time.Millisecond
	}
	if counters == nil {
		counters = &Counters{}
	}
	if log == nil {
		log = zap.S().Named("platform_pool")
	}
	p := &ThreadPool{
		cfg:      cfg,
		counters: counters,
		injector: NewInjector(),
		deques:   make([]*WorkerDeque, cfg.Workers),
		workers:  make([]*worker, cfg.Workers),
		wake:     make(chan struct{}, cfg.Workers),
		log:      log,
	}
	for i := range p.workers {
		p.deques[i] = NewWorkerDeque()
		p.workers[i] = &worker{id: i, pool: p, deque: p.deques[i]}
	}
	p.wg.Add(cfg.Workers)
	for _, w := range p.workers {
		go w.run()
	}
	p.log.Debugw("platform pool started", "workers", cfg.Workers, "pinned", cfg.PinThreads)
	return p
}

// NumWorkers returns the fixed pool size.
func (p *ThreadPool) NumWorkers() int { return len(p.workers) }

// Pending returns the number of tasks queued in the injector and deques.
func (p *ThreadPool) Pending() int { return int(p.pending.Load()) }

// owns reports whether w is one of this pool's workers.
func (p *ThreadPool) owns(w *worker) bool { return w != nil && w.pool == p }

// Push queues t. Tasks from one of this pool's workers go to that worker's
// deque; everything else enters through the injector.
func (p *ThreadPool) Push(t *Task, origin *worker) {
	p.counters.queued.Add(1)
	p.pending.Add(1)
	if p.owns(origin) {
		origin.deque.PushBottom(t)
	} else {
		p.injector.Push(t)
	}
	p.signal()
}

func (p *ThreadPool) signal() {
	if p.idle.Load() == 0 {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *ThreadPool) broadcast() {
	for range p.workers {
		select {
		case p.wake <- struct{}{}:
		default:
			return
		}
	}
}

func (p *ThreadPool) exitable() bool {
	switch p.state.Load() {
	case stateStopping:
		return true
	case stateDraining:
		return p.counters.idle()
	default:
		return false
	}
}

// replace is called on a worker goroutine that is dying inside a task.
func (p *ThreadPool) replace(w *worker) {
	if w.depth > 0 {
		p.counters.active.Add(-int64(w.depth))
		w.depth = 0
	}
	p.counters.replaced.Add(1)
	p.log.Errorw("platform worker died while running a task, replacing", "worker", w.id)
	go w.run()
}

// Stop switches the pool to drain or cancel mode. Under ShutdownCancel every
// queued task is cancelled and the number cancelled is returned.
func (p *ThreadPool) Stop(policy api.ShutdownPolicy) int {
	cancelled := 0
	if policy == api.ShutdownCancel {
		p.state.Store(stateStopping)
		cancelled = p.cancelQueued()
	} else {
		p.state.CompareAndSwap(stateRunning, stateDraining)
	}
	p.broadcast()
	return cancelled
}

func (p *ThreadPool) cancelQueued() int {
	tasks := p.injector.Drain()
	for _, d := range p.deques {
		tasks = append(tasks, d.Drain()...)
	}
	for _, t := range tasks {
		p.counters.queued.Add(-1)
		p.pending.Add(-1)
		t.cancelQueued()
	}
	return len(tasks)
}

// Wait blocks until every worker has exited, then cancels anything left.
func (p *ThreadPool) Wait() {
	p.wg.Wait()
	if n := p.cancelQueued(); n > 0 {
		p.log.Warnw("tasks left after workers exited", "cancelled", n)
	}
}
