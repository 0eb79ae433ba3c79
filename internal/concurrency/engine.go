// File: internal/concurrency/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine ties the platform pool, the blocking pool and the outstanding-task
// cap together behind a single Submit.

package concurrency

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/momentics/hioload-vt/api"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Pools log through named children.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithObserver registers fn to be called once per task when it reaches a
// terminal state, before its Future completes. fn runs on the goroutine that
// finished the task and must not block.
func WithObserver(fn func(TaskInfo)) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine is the scheduling core.
type Engine struct {
	cfg      api.Config
	counters Counters
	platform *ThreadPool
	blocking *BlockingPool
	slots    *semaphore.Weighted
	nextID   atomic.Uint64

	mu     sync.RWMutex
	closed bool
	policy api.ShutdownPolicy

	stopCtx     context.Context // done once shutdown begins
	stopAcquire context.CancelFunc
	taskCtx     context.Context // parent of every task context
	cancelTasks context.CancelFunc
	done        chan struct{}
	once        sync.Once

	log      *zap.SugaredLogger
	observer func(TaskInfo)
}

// NewEngine validates cfg and starts the platform workers.
func NewEngine(cfg api.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		slots: semaphore.NewWeighted(cfg.MaxVirtualThreads),
		done:  make(chan struct{}),
		log:   zap.S().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.stopCtx, e.stopAcquire = context.WithCancel(context.Background())
	e.taskCtx, e.cancelTasks = context.WithCancel(context.Background())
	e.platform = NewThreadPool(ThreadPoolConfig{
		Workers:        cfg.MaxPlatformThreads,
		InjectorBatch:  cfg.InjectorBatch,
		SpinIterations: cfg.SpinIterations,
		ParkTimeout:    cfg.ParkTimeout,
		PinThreads:     cfg.PinThreads,
	}, &e.counters, e.log.Named("platform_pool"))
	e.blocking = NewBlockingPool(cfg.MaxBlockingWorkers, cfg.BlockingIdleTimeout, &e.counters, e.log.Named("blocking_pool"))
	e.log.Infow("scheduler started",
		"platform_threads", e.platform.NumWorkers(),
		"max_blocking_workers", cfg.MaxBlockingWorkers,
		"max_virtual_threads", cfg.MaxVirtualThreads,
	)
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() api.Config { return e.cfg }

// NumWorkers returns the platform pool size.
func (e *Engine) NumWorkers() int { return e.platform.NumWorkers() }

// Done is closed after shutdown has joined every worker.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Submit schedules work. When ctx belongs to a task running on this engine's
// platform pool, the new task goes to that worker's deque. Submissions from
// any task of this engine never block on the outstanding cap: without a free
// slot a CPU task runs inline and blocking work is admitted over the cap.
// External callers block until a slot frees, ctx ends or shutdown begins.
func (e *Engine) Submit(ctx context.Context, work api.Work, opts TaskOptions) (*Future, error) {
	if work == nil {
		return nil, api.ErrConfig.WithContext("work", "nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	origin := workerFromContext(ctx)
	if !e.platform.owns(origin) {
		origin = nil
	}
	nested := origin != nil || helperFromContext(ctx) == e
	if !nested && e.stopCtx.Err() != nil {
		return nil, api.ErrPoolShutdown
	}
	slot, inline, err := e.acquire(ctx, nested, opts.Blocking)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	if e.closed && (!nested || e.policy == api.ShutdownCancel) {
		e.mu.RUnlock()
		if slot {
			e.slots.Release(1)
		}
		return nil, api.ErrPoolShutdown
	}
	t := newTask(e.nextID.Add(1), e.taskCtx, work, opts, e.finish)
	t.owner = e
	t.slot = slot
	e.counters.created.Add(1)
	switch {
	case inline:
	case opts.Blocking:
		if !e.blocking.Push(t) {
			t.cancelQueued()
		}
	default:
		e.platform.Push(t, origin)
	}
	e.mu.RUnlock()

	if inline {
		e.runInline(t, origin)
	}
	return t.future, nil
}

func (e *Engine) acquire(ctx context.Context, nested, blocking bool) (slot, inline bool, err error) {
	if e.slots.TryAcquire(1) {
		return true, false, nil
	}
	if nested {
		// Blocking work may not run on a platform thread; admit it over the cap.
		return false, !blocking, nil
	}
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(e.stopCtx, cancel)
	defer unhook()
	if err := e.slots.Acquire(actx, 1); err != nil {
		if e.stopCtx.Err() != nil {
			return false, false, api.ErrPoolShutdown
		}
		return false, false, contextError(ctx)
	}
	return true, false, nil
}

func (e *Engine) runInline(t *Task, w *worker) {
	if w == nil {
		if t.claim() {
			e.runHelped(t)
		}
		return
	}
	e.counters.inline.Add(1)
	e.counters.active.Add(1)
	if t.claim() {
		w.depth++
		t.run(context.WithValue(t.ctx, workerKey{}, w))
		w.depth--
	}
	e.counters.active.Add(-1)
}

// runHelped executes a claimed task on a goroutine outside the platform pool.
// A stale queue entry left behind is skipped when a worker pops it.
func (e *Engine) runHelped(t *Task) {
	e.counters.inline.Add(1)
	e.counters.active.Add(1)
	defer e.counters.active.Add(-1)
	t.run(helperContext(t))
}

func (e *Engine) finish(t *Task) {
	state := t.State()
	e.counters.record(state)
	if t.slot {
		e.slots.Release(1)
	}
	if state == api.TaskFailed {
		e.log.Debugw("task failed", "task", t.id, "blocking", t.blocking, "error", t.future.err)
	}
	if e.observer != nil {
		e.observer(t.Info())
	}
}

// Stats snapshots the engine counters.
func (e *Engine) Stats() api.Stats {
	s := e.counters.Snapshot()
	s.PlatformThreads = e.platform.NumWorkers()
	s.BlockingWorkers = e.blocking.Workers()
	s.Running = e.stopCtx.Err() == nil
	return s
}

// Shutdown stops the engine with the configured policy.
func (e *Engine) Shutdown(wait bool) error {
	return e.ShutdownWith(e.cfg.ShutdownPolicy, wait)
}

// ShutdownWith stops accepting external submissions and applies policy to
// queued tasks. Tasks running on platform workers may still submit nested
// work while draining. Only the first call selects the policy; later calls
// just wait when asked to. wait must not be set from inside a task.
func (e *Engine) ShutdownWith(policy api.ShutdownPolicy, wait bool) error {
	if !policy.Valid() {
		return api.ErrConfig.WithContext("shutdown_policy", string(policy))
	}
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.policy = policy
		e.mu.Unlock()
		e.stopAcquire()

		cancelled := e.platform.Stop(policy) + e.blocking.Stop(policy)
		if policy == api.ShutdownCancel {
			e.cancelTasks()
		}
		e.log.Infow("scheduler shutting down", "policy", string(policy), "cancelled", cancelled)
		go func() {
			e.platform.Wait()
			e.blocking.Wait()
			e.cancelTasks()
			s := e.Stats()
			e.log.Infow("scheduler stopped",
				"created", s.Created,
				"completed", s.Completed,
				"failed", s.Failed,
				"cancelled", s.Cancelled,
				"stolen", s.Stolen,
			)
			close(e.done)
		}()
	})
	if wait {
		<-e.done
	}
	return nil
}
