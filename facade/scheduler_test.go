package facade_test

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/control"
	"github.com/momentics/hioload-vt/facade"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

func returning(v any) api.Work {
	return func(context.Context) (any, error) { return v, nil }
}

// occupy parks every platform worker on a channel until release is called.
func occupy(s *facade.Scheduler) (release func()) {
	GinkgoHelper()
	gate := make(chan struct{})
	var started atomic.Int32
	for i := 0; i < s.NumWorkers(); i++ {
		_, err := s.Submit(func(context.Context) (any, error) {
			started.Add(1)
			<-gate
			return nil, nil
		})
		Expect(err).NotTo(HaveOccurred())
	}
	Eventually(started.Load).Should(BeNumerically("==", s.NumWorkers()))
	return func() { close(gate) }
}

var _ = Describe("Scheduler", func() {
	Describe("New", func() {
		It("rejects an invalid configuration", func() {
			cfg := facade.DefaultConfig()
			cfg.ShutdownPolicy = "sometimes"
			_, err := facade.New(cfg)
			Expect(err).To(MatchError(api.ErrConfig))
		})

		It("rejects an empty platform pool", func() {
			cfg := facade.DefaultConfig()
			cfg.MaxPlatformThreads = 0
			_, err := facade.New(cfg)
			Expect(err).To(MatchError(api.ErrConfig))
		})

		It("uses one platform worker per CPU by default", func() {
			s := newScheduler(0)
			Expect(s.NumWorkers()).To(Equal(runtime.NumCPU()))
			Expect(s.ID()).NotTo(BeEmpty())
		})
	})

	Describe("Submit", func() {
		It("returns the task value", func() {
			s := newScheduler(2)
			f, err := s.Submit(returning("done"))
			Expect(err).NotTo(HaveOccurred())
			Eventually(f.C(), time.Second).Should(BeClosed())
			v, err := f.Result(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("done"))
		})

		It("runs blocking work off the platform pool without starving CPU work", func() {
			s := newScheduler(2)
			var slept atomic.Int64
			for i := 0; i < 10000; i++ {
				_, err := s.Submit(func(context.Context) (any, error) {
					time.Sleep(50 * time.Millisecond)
					slept.Add(1)
					return nil, nil
				}, facade.WithBlocking())
				Expect(err).NotTo(HaveOccurred())
			}

			squares, err := facade.Map(context.Background(), s, func(_ context.Context, x int) (int, error) {
				return x * x, nil
			}, []int{0, 1, 2, 3, 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(squares).To(Equal([]int{0, 1, 4, 9, 16}))
			Expect(slept.Load()).To(BeNumerically("<", 10000))

			Eventually(slept.Load, 30*time.Second, 50*time.Millisecond).Should(BeNumerically("==", 10000))
		})

		It("never runs a task cancelled before execution", func() {
			s := newScheduler(2)
			release := occupy(s)
			var ran atomic.Bool
			f, err := s.Submit(func(context.Context) (any, error) {
				ran.Store(true)
				return nil, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Cancel()).To(BeTrue())
			release()

			_, err = f.Result(time.Second)
			Expect(err).To(MatchError(api.ErrCancelled))
			Consistently(ran.Load, 100*time.Millisecond).Should(BeFalse())
		})

		It("reports false when cancelling a completed task", func() {
			s := newScheduler(2)
			f, err := s.Submit(returning(1))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.Result(time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Cancel()).To(BeFalse())
		})

		It("times out a result wait without affecting the task", func() {
			s := newScheduler(2)
			f, err := s.Submit(func(context.Context) (any, error) {
				time.Sleep(time.Second)
				return "slow", nil
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = f.Result(10 * time.Millisecond)
			Expect(err).To(MatchError(api.ErrDeadlineExceeded))

			v, err := f.Result(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("slow"))
		})

		It("wraps user failures in a TaskError", func() {
			s := newScheduler(1)
			boom := errors.New("boom")
			f, err := s.Submit(func(context.Context) (any, error) { return nil, boom })
			Expect(err).NotTo(HaveOccurred())
			_, err = f.Result(time.Second)
			var taskErr *api.TaskError
			Expect(errors.As(err, &taskErr)).To(BeTrue())
			Expect(err).To(MatchError(boom))
			Expect(api.CodeOf(err)).To(Equal(api.ErrCodeTask))
		})

		It("prefers urgent work when workers free up", func() {
			s := newScheduler(1)
			release := occupy(s)
			order := make(chan string, 2)
			record := func(name string) api.Work {
				return func(context.Context) (any, error) {
					order <- name
					return nil, nil
				}
			}
			_, err := s.Submit(record("low"), facade.WithPriority(api.PriorityLowest))
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Submit(record("high"), facade.WithPriority(api.PriorityHighest))
			Expect(err).NotTo(HaveOccurred())
			release()
			Eventually(order).Should(Receive(Equal("high")))
			Eventually(order).Should(Receive(Equal("low")))
		})
	})

	Describe("Spawn", func() {
		It("returns a typed value", func() {
			s := newScheduler(2)
			f, err := facade.Spawn(s, func(context.Context) (int, error) { return 21 * 2, nil })
			Expect(err).NotTo(HaveOccurred())
			v, err := f.Result(time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(42))
		})

		It("runs nested data-parallel work inside a task", func() {
			s := newScheduler(1)
			f, err := facade.Spawn(s, func(ctx context.Context) ([]int, error) {
				return facade.Map(ctx, s, func(_ context.Context, x int) (int, error) {
					return x + 1, nil
				}, []int{1, 2, 3, 4, 5, 6, 7, 8})
			})
			Expect(err).NotTo(HaveOccurred())
			v, err := f.Result(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal([]int{2, 3, 4, 5, 6, 7, 8, 9}))
		})
	})

	Describe("waiting inside a task", func() {
		It("does not wedge a single worker on an unbounded Result", func() {
			s := newScheduler(1)
			f, err := facade.Spawn(s, func(ctx context.Context) (int, error) {
				child, err := facade.SpawnContext(ctx, s, func(context.Context) (int, error) { return 7, nil })
				if err != nil {
					return 0, err
				}
				return child.Result(0)
			})
			Expect(err).NotTo(HaveOccurred())
			v, err := f.Result(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(7))
		})

		It("runs a data-parallel call with a background context", func() {
			s := newScheduler(1)
			f, err := facade.Spawn(s, func(context.Context) (int, error) {
				squares, err := facade.Map(context.Background(), s, func(_ context.Context, x int) (int, error) {
					return x * x, nil
				}, []int{1, 2, 3})
				if err != nil {
					return 0, err
				}
				a, err := facade.MapAsync(context.Background(), s, func(_ context.Context, x int) (int, error) {
					return x + 1, nil
				}, squares)
				if err != nil {
					return 0, err
				}
				out, err := a.Result(0)
				if err != nil {
					return 0, err
				}
				return out[0] + out[1] + out[2], nil
			})
			Expect(err).NotTo(HaveOccurred())
			v, err := f.Result(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(17))
		})

		It("admits nested work from a blocking task at the outstanding cap", func() {
			s := newScheduler(2, func(c *facade.Config) { c.MaxVirtualThreads = 1 })
			f, err := facade.Spawn(s, func(ctx context.Context) (int, error) {
				child, err := facade.SpawnContext(ctx, s, func(context.Context) (int, error) { return 4, nil })
				if err != nil {
					return 0, err
				}
				return child.Await(ctx)
			}, facade.WithBlocking())
			Expect(err).NotTo(HaveOccurred())
			v, err := f.Result(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(4))
		})
	})

	Describe("Stats", func() {
		It("counts every submission and completion", func() {
			s := newScheduler(2)
			for i := 0; i < 50; i++ {
				_, err := s.Submit(returning(i))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(s.Stats().Created).To(Equal(uint64(50)))
			Eventually(func() uint64 { return s.Stats().Completed }).Should(Equal(uint64(50)))
			Expect(s.Stats().PlatformThreads).To(Equal(2))
		})
	})

	Describe("Shutdown", func() {
		It("drains queued work", func() {
			s := newScheduler(2)
			var ran atomic.Int64
			for i := 0; i < 100; i++ {
				_, err := s.Submit(func(context.Context) (any, error) {
					time.Sleep(200 * time.Microsecond)
					ran.Add(1)
					return nil, nil
				})
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(s.Shutdown(true)).To(Succeed())
			Expect(ran.Load()).To(Equal(int64(100)))
			Expect(s.Done()).To(BeClosed())

			_, err := s.Submit(returning(1))
			Expect(err).To(MatchError(api.ErrPoolShutdown))
		})

		It("cancels queued work under the cancel policy", func() {
			s := newScheduler(1, func(c *facade.Config) { c.ShutdownPolicy = api.ShutdownCancel })
			release := occupy(s)
			defer release()
			queued := make([]*facade.Future, 5)
			for i := range queued {
				f, err := s.Submit(returning(i))
				Expect(err).NotTo(HaveOccurred())
				queued[i] = f
			}
			Expect(s.Shutdown(false)).To(Succeed())
			for _, f := range queued {
				Expect(f.Cancelled()).To(BeTrue())
			}
			Expect(s.Stats().Cancelled).To(Equal(uint64(5)))
		})
	})

	Describe("Retry", func() {
		It("retries until the work succeeds", func() {
			s := newScheduler(2)
			var attempts atomic.Int32
			f, err := s.Submit(func(context.Context) (any, error) {
				if attempts.Add(1) < 3 {
					return nil, errors.New("flaky")
				}
				return "ok", nil
			}, facade.WithRetry(facade.RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond}))
			Expect(err).NotTo(HaveOccurred())
			v, err := f.Result(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("ok"))
			Expect(attempts.Load()).To(Equal(int32(3)))
		})

		It("stops on a permanent error", func() {
			s := newScheduler(2)
			fatal := errors.New("fatal")
			var attempts atomic.Int32
			f, err := s.Submit(func(context.Context) (any, error) {
				attempts.Add(1)
				return nil, facade.Permanent(fatal)
			}, facade.WithRetry(facade.RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond}))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.Result(2 * time.Second)
			Expect(err).To(MatchError(fatal))
			Expect(attempts.Load()).To(Equal(int32(1)))
		})

		It("gives up after MaxAttempts", func() {
			s := newScheduler(2)
			var attempts atomic.Int32
			f, err := facade.Spawn(s, func(context.Context) (int, error) {
				attempts.Add(1)
				return 0, errors.New("always")
			}, facade.WithRetry(facade.RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.Result(2 * time.Second)
			Expect(err).To(HaveOccurred())
			Expect(attempts.Load()).To(Equal(int32(3)))
		})
	})

	Describe("Control", func() {
		It("hot-reloads planner tunables", func() {
			s := newScheduler(2)
			items := make([]int, 40)
			a, err := facade.MapAsync(context.Background(), s, func(_ context.Context, x int) (int, error) { return x, nil }, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Chunks()).To(Equal(2))
			_, err = a.Await(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Control().SetConfig(map[string]any{
				control.KeySmallDatasetThreshold: 10,
				control.KeyChunkMultiplier:       5,
			})).To(Succeed())
			a, err = facade.MapAsync(context.Background(), s, func(_ context.Context, x int) (int, error) { return x, nil }, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Chunks()).To(Equal(10))
			_, err = a.Await(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Control().SetConfig(map[string]any{control.KeyMinChunkSize: -1})).To(MatchError(api.ErrConfig))
			Expect(s.Control().Stats()).To(HaveKey("created"))
			Expect(s.Control().DumpState()).To(HaveKey("scheduler.stats"))
		})

		It("exposes an api.Executor view", func() {
			s := newScheduler(2)
			exec := s.Executor()
			Expect(exec.NumWorkers()).To(Equal(2))
			f, err := exec.SubmitBlocking(func(ctx context.Context) (any, error) {
				_, onPlatform := concurrency.WorkerID(ctx)
				return onPlatform, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Await(context.Background())).To(BeFalse())
		})
	})

	Describe("Metrics", func() {
		It("registers and unregisters collectors", func() {
			reg := prometheus.NewRegistry()
			cfg := facade.DefaultConfig()
			cfg.MaxPlatformThreads = 2
			s, err := facade.New(cfg, facade.WithMetrics(reg, "vt"), facade.WithID("metrics-test"))
			Expect(err).NotTo(HaveOccurred())

			f, err := s.Submit(returning(1))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.Result(time.Second)
			Expect(err).NotTo(HaveOccurred())

			n, err := testutil.GatherAndCount(reg, "vt_scheduler_tasks_created_total", "vt_scheduler_task_run_seconds")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			_, err = facade.New(cfg, facade.WithMetrics(reg, "vt"), facade.WithID("metrics-test"))
			Expect(err).To(HaveOccurred())

			Expect(s.Close()).To(Succeed())
			n, err = testutil.GatherAndCount(reg)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("Executor shutdown", func() {
		It("unregisters metrics like Scheduler.Shutdown", func() {
			reg := prometheus.NewRegistry()
			cfg := facade.DefaultConfig()
			cfg.MaxPlatformThreads = 1
			s, err := facade.New(cfg, facade.WithMetrics(reg, "vt"))
			Expect(err).NotTo(HaveOccurred())
			n, err := testutil.GatherAndCount(reg, "vt_scheduler_tasks_created_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			Expect(s.Executor().Shutdown(true)).To(Succeed())
			Expect(s.Done()).To(BeClosed())
			n, err = testutil.GatherAndCount(reg)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("Default", func() {
		It("is created lazily and replaced after ShutdownDefault", func() {
			first := facade.Default()
			Expect(facade.Default()).To(BeIdenticalTo(first))
			Expect(facade.ShutdownDefault()).To(Succeed())
			Expect(first.Done()).To(BeClosed())

			second := facade.Default()
			Expect(second).NotTo(BeIdenticalTo(first))
			Expect(facade.ShutdownDefault()).To(Succeed())
			Expect(facade.ShutdownDefault()).To(Succeed())
		})

		It("backs the package-level helpers", func() {
			DeferCleanup(facade.ShutdownDefault)

			f, err := facade.Go(func(context.Context) (any, error) { return "hi", nil })
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Err()).To(Succeed())
			Expect(f.Result(0)).To(Equal("hi"))

			boom := errors.New("boom")
			failed, err := facade.GoContext(context.Background(), func(context.Context) (any, error) { return nil, boom })
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Err()).To(MatchError(boom))

			doubled, err := facade.ParallelMap(context.Background(), func(_ context.Context, x int) (int, error) {
				return 2 * x, nil
			}, []int{1, 2, 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(doubled).To(Equal([]int{2, 4, 6}))
			Expect(facade.Default().Stats().Created).To(BeNumerically(">=", 3))
		})
	})
})
