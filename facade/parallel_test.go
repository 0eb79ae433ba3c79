package facade_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/facade"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

func square(_ context.Context, x int) (int, error) { return x * x, nil }

func sum(_ context.Context, a, b int) (int, error) { return a + b, nil }

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

var _ = Describe("Data-parallel primitives", func() {
	var s *facade.Scheduler
	ctx := context.Background()

	BeforeEach(func() {
		s = newScheduler(2)
	})

	Describe("Map", func() {
		It("squares in input order", func() {
			out, err := facade.Map(ctx, s, square, []int{0, 1, 2, 3, 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]int{0, 1, 4, 9, 16}))
		})

		It("handles empty and single inputs", func() {
			out, err := facade.Map(ctx, s, square, []int{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())

			out, err = facade.Map(ctx, s, square, []int{7})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]int{49}))
		})

		It("matches a sequential map on large inputs", func() {
			items := seq(100000)
			out, err := facade.Map(ctx, s, square, items)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(len(items)))
			for i, v := range out {
				if v != i*i {
					Fail(fmt.Sprintf("out[%d] = %d", i, v))
				}
			}
		})

		It("plans multiplier-sized chunks for large inputs", func() {
			a, err := facade.MapAsync(ctx, s, square, seq(100000))
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Chunks()).To(Equal(8))
			_, err = a.Await(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Done()).To(BeTrue())
			Expect(a.Cancel()).To(BeFalse())
		})

		It("honours a fixed chunk size", func() {
			a, err := facade.MapAsync(ctx, s, square, seq(10), facade.WithChunkSize(3))
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Chunks()).To(Equal(4))
			out, err := a.Result(time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}))
		})

		It("reports the first failure by input order", func() {
			early := errors.New("early")
			late := errors.New("late")
			_, err := facade.Map(ctx, s, func(_ context.Context, x int) (int, error) {
				switch x {
				case 3:
					time.Sleep(50 * time.Millisecond)
					return 0, early
				case 9:
					return 0, late
				}
				return x, nil
			}, seq(12), facade.WithChunkSize(1))

			var taskErr *api.TaskError
			Expect(errors.As(err, &taskErr)).To(BeTrue())
			var itemErr *facade.ItemError
			Expect(errors.As(err, &itemErr)).To(BeTrue())
			Expect(itemErr.Index).To(Equal(3))
			Expect(err).To(MatchError(early))
		})

		It("surfaces panics as task failures", func() {
			_, err := facade.Map(ctx, s, func(_ context.Context, x int) (int, error) {
				if x == 2 {
					panic("bad item")
				}
				return x, nil
			}, seq(4))
			var taskErr *api.TaskError
			Expect(errors.As(err, &taskErr)).To(BeTrue())
			Expect(taskErr.Panic).To(Equal("bad item"))
		})

		It("retries each item under a retry policy", func() {
			var attempts atomic.Int32
			out, err := facade.Map(ctx, s, func(_ context.Context, x int) (int, error) {
				if x == 1 && attempts.Add(1) < 3 {
					return 0, errors.New("flaky")
				}
				return x, nil
			}, seq(3), facade.WithRetry(facade.RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond}))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]int{0, 1, 2}))
			Expect(attempts.Load()).To(Equal(int32(3)))
		})

		It("runs on the blocking pool when asked", func() {
			out, err := facade.Map(ctx, s, func(ctx context.Context, _ int) (bool, error) {
				_, onPlatform := concurrency.WorkerID(ctx)
				return onPlatform, nil
			}, seq(4), facade.WithBlocking())
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]bool{false, false, false, false}))
		})
	})

	Describe("cancellation", func() {
		slow := func(ran *atomic.Int64) func(context.Context, int) (int, error) {
			return func(_ context.Context, x int) (int, error) {
				time.Sleep(10 * time.Millisecond)
				ran.Add(1)
				return x, nil
			}
		}

		It("resolves a cancelled aggregate to ErrCancelled", func() {
			var ran atomic.Int64
			a, err := facade.MapAsync(ctx, s, slow(&ran), seq(100), facade.WithChunkSize(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Cancel()).To(BeTrue())

			_, err = a.Await(ctx)
			Expect(err).To(MatchError(api.ErrCancelled))
			Consistently(ran.Load, 100*time.Millisecond).Should(BeNumerically("<", 100))
		})

		It("stops when the caller context is cancelled", func() {
			var ran atomic.Int64
			cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()
			_, err := facade.Map(cctx, s, slow(&ran), seq(200), facade.WithChunkSize(1))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, api.ErrCancelled)).To(BeTrue())
			Consistently(ran.Load, 100*time.Millisecond).Should(BeNumerically("<", 200))
		})

		It("maps an explicit cancel to ErrCancelled", func() {
			var ran atomic.Int64
			cctx, cancel := context.WithCancel(ctx)
			time.AfterFunc(20*time.Millisecond, cancel)
			_, err := facade.Map(cctx, s, slow(&ran), seq(200), facade.WithChunkSize(1))
			Expect(err).To(MatchError(api.ErrCancelled))
		})
	})

	Describe("Starmap", func() {
		It("unpacks argument tuples", func() {
			out, err := facade.Starmap(ctx, s, func(_ context.Context, args ...any) (string, error) {
				return strings.Repeat(args[0].(string), args[1].(int)), nil
			}, [][]any{{"a", 1}, {"b", 2}, {"c", 3}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]string{"a", "bb", "ccc"}))
		})
	})

	Describe("Filter", func() {
		It("keeps matching items in order", func() {
			out, err := facade.Filter(ctx, s, func(_ context.Context, x int) (bool, error) {
				return x%2 == 0, nil
			}, []int{5, 2, 8, 1, 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]int{2, 8, 4}))
		})

		It("returns an empty slice when nothing matches", func() {
			out, err := facade.Filter(ctx, s, func(context.Context, int) (bool, error) {
				return false, nil
			}, seq(50))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
		})
	})

	Describe("Reduce", func() {
		DescribeTable("sums like a sequential fold",
			func(n int) {
				want := 0
				for i := 0; i < n; i++ {
					want += i
				}
				got, err := facade.Reduce(ctx, s, sum, seq(n), 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			},
			Entry("empty input", 0),
			Entry("single item", 1),
			Entry("small input", 17),
			Entry("large input", 50000),
		)

		It("applies identity exactly once", func() {
			got, err := facade.Reduce(ctx, s, sum, seq(100), 1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(4950 + 1000))
		})

		It("preserves order for associative non-commutative combines", func() {
			words := make([]string, 2000)
			for i := range words {
				words[i] = string(rune('a' + i%26))
			}
			got, err := facade.Reduce(ctx, s, func(_ context.Context, a, b string) (string, error) {
				return a + b, nil
			}, words, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(strings.Join(words, "")))
		})
	})

	Describe("MapCollect", func() {
		It("keeps going past failures and panics", func() {
			bad := errors.New("bad")
			results, err := facade.MapCollect(ctx, s, func(_ context.Context, x int) (int, error) {
				switch x {
				case 1:
					return 0, bad
				case 3:
					panic("worse")
				}
				return x * 10, nil
			}, seq(5))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))
			Expect(results[0]).To(Equal(api.Result[int]{Value: 0}))
			Expect(results[2].Value).To(Equal(20))
			Expect(results[4].Value).To(Equal(40))
			Expect(results[1].Err).To(MatchError(bad))
			Expect(results[3].Err).To(MatchError(ContainSubstring("worse")))

			joined := facade.Errors(results)
			Expect(multierr.Errors(joined)).To(HaveLen(2))
			Expect(facade.Errors(results[:1])).To(Succeed())
		})
	})
})
