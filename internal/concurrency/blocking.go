// File: internal/concurrency/blocking.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BlockingPool is the elastic pool for tasks that block on I/O or sleep.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vt/api"
)

// BlockingPool spawns goroutines on demand up to a cap. Workers beyond the
// current demand exit after the idle timeout. Tasks are served FIFO.
type BlockingPool struct {
	max         int
	idleTimeout time.Duration
	counters    *Counters
	log         *zap.SugaredLogger

	mu      sync.Mutex
	queue   *queue.Queue
	workers int
	idle    int // parked workers not yet reserved by a submitter
	closing bool
	stopped bool
	tokens  chan struct{} // one token per reservation of a parked worker
	stopCh  chan struct{}

	live atomic.Int32
	wg   sync.WaitGroup
}

// NewBlockingPool returns an empty pool; no goroutine runs until work arrives.
func NewBlockingPool(max int, idleTimeout time.Duration, counters *Counters, log *zap.SugaredLogger) *BlockingPool {
	if max <= 0 {
		max = 1
	}
	if counters == nil {
		counters = &Counters{}
	}
	if log == nil {
		log = zap.S().Named("blocking_pool")
	}
	return &BlockingPool{
		max:         max,
		idleTimeout: idleTimeout,
		counters:    counters,
		log:         log,
		queue:       queue.New(),
		tokens:      make(chan struct{}, max),
		stopCh:      make(chan struct{}),
	}
}

// Workers returns the number of live blocking goroutines.
func (p *BlockingPool) Workers() int { return int(p.live.Load()) }

// Pending returns the number of queued blocking tasks.
func (p *BlockingPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Length()
}

// Push queues t and wakes or spawns a worker. It returns false once the pool
// has fully stopped.
func (p *BlockingPool) Push(t *Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.counters.queued.Add(1)
	p.queue.Add(t)
	switch {
	case p.idle > 0:
		p.idle--
		p.tokens <- struct{}{}
	case p.workers < p.max:
		p.spawnLocked()
	}
	return true
}

func (p *BlockingPool) spawnLocked() {
	p.workers++
	p.live.Add(1)
	p.wg.Add(1)
	go p.work()
}

func (p *BlockingPool) work() {
	clean := false
	defer func() {
		p.mu.Lock()
		p.workers--
		p.live.Add(-1)
		if !clean {
			p.counters.replaced.Add(1)
			p.log.Errorw("blocking worker died while running a task")
			if p.queue.Length() > 0 && !p.stopped {
				p.spawnLocked()
			}
		}
		p.mu.Unlock()
		p.wg.Done()
	}()
	for {
		t, ok := p.next()
		if !ok {
			clean = true
			return
		}
		p.counters.active.Add(1)
		p.counters.queued.Add(-1)
		if t.claim() {
			running := true
			func() {
				defer func() {
					if running {
						p.counters.active.Add(-1)
					}
				}()
				t.run(helperContext(t))
				running = false
				p.counters.active.Add(-1)
			}()
		} else {
			p.counters.active.Add(-1)
		}
	}
}

// next returns the next task, parking while the queue is empty. It returns
// false when the worker should exit.
func (p *BlockingPool) next() (*Task, bool) {
	p.mu.Lock()
	for {
		if p.queue.Length() > 0 {
			t := p.queue.Remove().(*Task)
			p.mu.Unlock()
			return t, true
		}
		if p.closing {
			p.mu.Unlock()
			return nil, false
		}
		p.idle++
		p.mu.Unlock()

		timer := time.NewTimer(p.idleTimeout)
		expired := false
		select {
		case <-p.tokens:
			timer.Stop()
			p.mu.Lock()
			continue
		case <-timer.C:
			expired = true
		case <-p.stopCh:
			timer.Stop()
		}

		p.mu.Lock()
		select {
		case <-p.tokens:
			// A submitter reserved a parked worker meanwhile; take it over.
			continue
		default:
		}
		p.idle--
		if expired && p.queue.Length() == 0 {
			p.mu.Unlock()
			return nil, false
		}
	}
}

// Stop begins shutdown. Under ShutdownCancel queued tasks are cancelled and
// counted in the return value; under ShutdownDrain workers exit once the
// queue is empty.
func (p *BlockingPool) Stop(policy api.ShutdownPolicy) int {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return 0
	}
	p.closing = true
	var tasks []*Task
	if policy == api.ShutdownCancel {
		tasks = p.drainLocked()
	}
	close(p.stopCh)
	p.mu.Unlock()
	for _, t := range tasks {
		t.cancelQueued()
	}
	return len(tasks)
}

func (p *BlockingPool) drainLocked() []*Task {
	tasks := make([]*Task, 0, p.queue.Length())
	for p.queue.Length() > 0 {
		tasks = append(tasks, p.queue.Remove().(*Task))
		p.counters.queued.Add(-1)
	}
	return tasks
}

// Wait blocks until every worker has exited and marks the pool stopped.
func (p *BlockingPool) Wait() {
	p.wg.Wait()
	p.mu.Lock()
	p.stopped = true
	tasks := p.drainLocked()
	p.mu.Unlock()
	for _, t := range tasks {
		t.cancelQueued()
	}
}
