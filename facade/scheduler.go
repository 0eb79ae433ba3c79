// File: facade/scheduler.go
// Unified facade layer for the hioload-vt scheduler.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler aggregates the scheduling engine, the hot-reloadable planner
// tunables, the Control surface and optional Prometheus collectors behind a
// single handle. Data-parallel primitives live in parallel.go as generic
// package functions taking a *Scheduler.

package facade

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vt/adapters"
	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/control"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

// Future is the result handle returned by Submit.
type Future = concurrency.Future

// Config is the scheduler configuration.
type Config = api.Config

// DefaultConfig returns the default configuration.
func DefaultConfig() Config { return api.DefaultConfig() }

// Option customises New.
type Option func(*options)

type options struct {
	id         string
	logger     *zap.Logger
	registerer prometheus.Registerer
	namespace  string
}

// WithLogger replaces the global zap logger for this scheduler.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithID names the scheduler; the id labels logs and metrics.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithMetrics registers scheduler collectors on reg under namespace. They are
// unregistered on shutdown.
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.registerer = reg
		o.namespace = namespace
	}
}

// Scheduler is the main facade type.
type Scheduler struct {
	id       string
	cfg      Config
	engine   *concurrency.Engine
	tunables *control.Tunables
	control  api.Control
	executor api.Executor
	log      *zap.SugaredLogger

	registerer prometheus.Registerer
	collectors []prometheus.Collector
	unregister sync.Once
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Scheduler)(nil)

// New validates cfg and starts the platform workers.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	o := options{logger: zap.L(), namespace: "hioload_vt"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	s := &Scheduler{
		id:         o.id,
		cfg:        cfg,
		log:        o.logger.Sugar().Named("scheduler").With("scheduler_id", o.id),
		registerer: o.registerer,
	}

	engineOpts := []concurrency.Option{concurrency.WithLogger(s.log)}
	var taskMetrics *control.TaskMetrics
	labels := prometheus.Labels{"scheduler": s.id}
	if s.registerer != nil {
		taskMetrics = control.NewTaskMetrics(o.namespace, labels)
		engineOpts = append(engineOpts, concurrency.WithObserver(taskMetrics.Observe))
	}
	engine, err := concurrency.NewEngine(cfg, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("facade: %w", err)
	}
	s.engine = engine
	s.tunables = control.NewTunables(cfg)
	s.control = adapters.NewControlAdapter(s.tunables, s.Stats)
	s.executor = adapters.NewExecutorAdapter(engine, adapters.WithShutdown(s.Shutdown))
	s.tunables.OnReload(func() {
		s.log.Infow("planner tunables reloaded", "config", s.tunables.GetSnapshot())
	})

	if s.registerer != nil {
		s.collectors = []prometheus.Collector{
			control.NewStatsCollector(o.namespace, labels, s.Stats),
			taskMetrics,
		}
		for _, c := range s.collectors {
			if err := s.registerer.Register(c); err != nil {
				s.unregisterCollectors()
				_ = engine.ShutdownWith(api.ShutdownCancel, true)
				return nil, fmt.Errorf("facade: register metrics: %w", err)
			}
		}
	}
	return s, nil
}

// ID returns the scheduler identifier.
func (s *Scheduler) ID() string { return s.id }

// Config returns the construction-time configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// NumWorkers returns the platform pool size.
func (s *Scheduler) NumWorkers() int { return s.engine.NumWorkers() }

// Control exposes tunables, stats and debug probes.
func (s *Scheduler) Control() api.Control { return s.control }

// Executor returns the api.Executor view for collaborators.
func (s *Scheduler) Executor() api.Executor { return s.executor }

// Stats snapshots the scheduler counters.
func (s *Scheduler) Stats() api.Stats { return s.engine.Stats() }

// Done is closed once shutdown has joined every worker.
func (s *Scheduler) Done() <-chan struct{} { return s.engine.Done() }

// Submit schedules work with background context.
func (s *Scheduler) Submit(work api.Work, opts ...SubmitOption) (*Future, error) {
	return s.SubmitContext(context.Background(), work, opts...)
}

// SubmitContext schedules work. Passing the context a running task received
// makes the submission nested: it lands on the current worker's deque and
// never blocks on the outstanding cap.
func (s *Scheduler) SubmitContext(ctx context.Context, work api.Work, opts ...SubmitOption) (*Future, error) {
	o := s.submitOptions(opts)
	if work != nil && o.retry != nil {
		work = o.retry.wrap(work)
	}
	return s.engine.Submit(ctx, work, o.task())
}

// Shutdown stops the scheduler with the configured policy.
func (s *Scheduler) Shutdown(wait bool) error {
	return s.ShutdownWith(s.cfg.ShutdownPolicy, wait)
}

// ShutdownWith stops the scheduler with an explicit policy.
func (s *Scheduler) ShutdownWith(policy api.ShutdownPolicy, wait bool) error {
	if err := s.engine.ShutdownWith(policy, wait); err != nil {
		return err
	}
	s.unregisterCollectors()
	return nil
}

// Close drains and waits.
func (s *Scheduler) Close() error {
	return s.ShutdownWith(api.ShutdownDrain, true)
}

func (s *Scheduler) unregisterCollectors() {
	if s.registerer == nil {
		return
	}
	s.unregister.Do(func() {
		for _, c := range s.collectors {
			s.registerer.Unregister(c)
		}
	})
}
