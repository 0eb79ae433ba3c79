// File: cmd/vtbench/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/facade"
)

type runOptions struct {
	items    int
	sleepers int
	sleep    time.Duration
	timeout  time.Duration
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a map/filter/reduce workload next to blocking sleepers and print stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runWorkload(cmd.Context(), cmd.OutOrStdout(), cfg, logger, opts)
		},
	}
	cmd.Flags().IntVar(&opts.items, "items", 1_000_000, "Number of items fed to the data-parallel stages")
	cmd.Flags().IntVar(&opts.sleepers, "sleepers", 10_000, "Number of blocking tasks submitted alongside")
	cmd.Flags().DurationVar(&opts.sleep, "sleep", 10*time.Millisecond, "Duration each blocking task sleeps")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Upper bound for the whole workload")
	return cmd
}

type report struct {
	Sum      int64         `json:"sum"`
	Kept     int           `json:"kept"`
	Sleepers int           `json:"sleepers"`
	CPUTime  time.Duration `json:"cpu_elapsed_ns"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Stats    api.Stats     `json:"stats"`
}

func runWorkload(ctx context.Context, out io.Writer, cfg facade.Config, logger *zap.Logger, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	s, err := facade.New(cfg, facade.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Shutdown(false) //nolint:errcheck

	start := time.Now()
	var sleepers sync.WaitGroup
	for i := 0; i < opts.sleepers; i++ {
		f, err := s.SubmitContext(ctx, func(ctx context.Context) (any, error) {
			select {
			case <-time.After(opts.sleep):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}, facade.WithBlocking())
		if err != nil {
			return fmt.Errorf("submit sleeper %d: %w", i, err)
		}
		sleepers.Add(1)
		go func() {
			defer sleepers.Done()
			_, _ = f.Await(ctx)
		}()
	}

	items := make([]int64, opts.items)
	for i := range items {
		items[i] = int64(i)
	}
	cpuStart := time.Now()
	squares, err := facade.Map(ctx, s, func(_ context.Context, x int64) (int64, error) {
		return x * x, nil
	}, items)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}
	even, err := facade.Filter(ctx, s, func(_ context.Context, x int64) (bool, error) {
		return x%2 == 0, nil
	}, squares)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	sum, err := facade.Reduce(ctx, s, func(_ context.Context, a, b int64) (int64, error) {
		return a + b, nil
	}, even, 0)
	if err != nil {
		return fmt.Errorf("reduce: %w", err)
	}
	cpuTime := time.Since(cpuStart)
	logger.Info("cpu stages finished", zap.Duration("elapsed", cpuTime), zap.Int("kept", len(even)))

	sleepers.Wait()
	if err := s.Close(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report{
		Sum:      sum,
		Kept:     len(even),
		Sleepers: opts.sleepers,
		CPUTime:  cpuTime,
		Elapsed:  time.Since(start),
		Stats:    s.Stats(),
	})
}
