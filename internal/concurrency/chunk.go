// File: internal/concurrency/chunk.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "github.com/momentics/hioload-vt/api"

// Chunk is the half-open range [Start, End) of input indices, tagged with its
// position in the plan.
type Chunk struct {
	Ordinal int
	Start   int
	End     int
}

// Len returns the number of items in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// PlannerConfig tunes PlanChunks.
type PlannerConfig struct {
	SmallDatasetThreshold int
	ChunkMultiplier       int
	MinChunkSize          int
	// FixedSize, when positive, overrides the sizing policy.
	FixedSize int
}

// DefaultPlannerConfig mirrors the api.Config defaults.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		SmallDatasetThreshold: 1000,
		ChunkMultiplier:       4,
		MinChunkSize:          4,
	}
}

// PlannerFromConfig extracts the planner settings of cfg.
func PlannerFromConfig(cfg api.Config) PlannerConfig {
	return PlannerConfig{
		SmallDatasetThreshold: cfg.SmallDatasetThreshold,
		ChunkMultiplier:       cfg.ChunkMultiplier,
		MinChunkSize:          cfg.MinChunkSize,
	}
}

// ChunkSize returns the size PlanChunks would use for n items on workers.
func (c PlannerConfig) ChunkSize(n, workers int) int {
	if c.FixedSize > 0 {
		return c.FixedSize
	}
	if n < workers {
		return 1
	}
	floor := max(c.MinChunkSize, 1)
	if n < c.SmallDatasetThreshold {
		return max(ceilDiv(n, workers), floor)
	}
	target := workers * max(c.ChunkMultiplier, 1)
	return max(ceilDiv(n, target), floor)
}

// PlanChunks partitions [0, n) into ordered, contiguous, non-overlapping
// chunks. The last chunk may be short.
func PlanChunks(n, workers int, cfg PlannerConfig) ([]Chunk, error) {
	if workers <= 0 {
		return nil, api.ErrConfig.WithContext("workers", workers)
	}
	if n < 0 {
		return nil, api.ErrConfig.WithContext("items", n)
	}
	if n == 0 {
		return []Chunk{}, nil
	}
	size := cfg.ChunkSize(n, workers)
	chunks := make([]Chunk, 0, ceilDiv(n, size))
	for start := 0; start < n; start += size {
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Start:   start,
			End:     min(start+size, n),
		})
	}
	return chunks, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
