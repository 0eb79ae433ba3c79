// File: api/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler configuration shared by the facade, the pools and the loaders.

package api

import (
	"fmt"
	"runtime"
	"time"

	"github.com/creasty/defaults"
)

// Config holds every scheduler setting. Struct tags drive creasty/defaults
// and the viper/mapstructure loader in package control.
type Config struct {
	// MaxPlatformThreads is the fixed CPU pool size. DefaultConfig sets it to
	// runtime.NumCPU().
	MaxPlatformThreads int `mapstructure:"max_platform_threads"`
	// MaxVirtualThreads caps queued plus running tasks across both pools.
	MaxVirtualThreads int64 `mapstructure:"max_virtual_threads" default:"1000000"`
	// MaxBlockingWorkers caps the elastic blocking pool.
	MaxBlockingWorkers int `mapstructure:"max_blocking_workers" default:"512"`
	// BlockingIdleTimeout is how long an idle blocking worker lingers.
	BlockingIdleTimeout time.Duration `mapstructure:"blocking_idle_timeout" default:"2s"`

	SmallDatasetThreshold int `mapstructure:"small_dataset_threshold" default:"1000"`
	ChunkMultiplier       int `mapstructure:"chunk_multiplier" default:"4"`
	MinChunkSize          int `mapstructure:"min_chunk_size" default:"4"`

	InjectorBatch  int           `mapstructure:"injector_batch" default:"8"`
	SpinIterations int           `mapstructure:"spin_iterations" default:"32"`
	ParkTimeout    time.Duration `mapstructure:"park_timeout" default:"10ms"`

	DefaultPriority Priority       `mapstructure:"default_priority" default:"128"`
	ShutdownPolicy  ShutdownPolicy `mapstructure:"shutdown_policy" default:"drain"`
	PinThreads      bool           `mapstructure:"pin_threads" default:"false"`
}

// DefaultConfig returns a Config populated from the struct defaults.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("api: invalid config defaults: %v", err))
	}
	cfg.MaxPlatformThreads = runtime.NumCPU()
	return cfg
}

// Validate reports the first invalid field as ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.MaxPlatformThreads < 1:
		return ErrConfig.WithContext("max_platform_threads", c.MaxPlatformThreads)
	case c.MaxVirtualThreads <= 0:
		return ErrConfig.WithContext("max_virtual_threads", c.MaxVirtualThreads)
	case c.MaxBlockingWorkers <= 0:
		return ErrConfig.WithContext("max_blocking_workers", c.MaxBlockingWorkers)
	case c.BlockingIdleTimeout <= 0:
		return ErrConfig.WithContext("blocking_idle_timeout", c.BlockingIdleTimeout)
	case c.SmallDatasetThreshold < 1:
		return ErrConfig.WithContext("small_dataset_threshold", c.SmallDatasetThreshold)
	case c.ChunkMultiplier < 1:
		return ErrConfig.WithContext("chunk_multiplier", c.ChunkMultiplier)
	case c.MinChunkSize < 1:
		return ErrConfig.WithContext("min_chunk_size", c.MinChunkSize)
	case c.InjectorBatch < 1:
		return ErrConfig.WithContext("injector_batch", c.InjectorBatch)
	case c.SpinIterations < 0:
		return ErrConfig.WithContext("spin_iterations", c.SpinIterations)
	case c.ParkTimeout <= 0:
		return ErrConfig.WithContext("park_timeout", c.ParkTimeout)
	}
	if !c.ShutdownPolicy.Valid() {
		return ErrConfig.WithContext("shutdown_policy", string(c.ShutdownPolicy))
	}
	return nil
}
