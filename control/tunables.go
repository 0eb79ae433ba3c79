// control/tunables.go
// Author: momentics <momentics@gmail.com>
//
// Hot-reloadable chunk planner settings.

package control

import (
	"sync/atomic"

	"github.com/spf13/cast"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

const (
	KeySmallDatasetThreshold = "small_dataset_threshold"
	KeyChunkMultiplier       = "chunk_multiplier"
	KeyMinChunkSize          = "min_chunk_size"
)

// Tunables publishes the planner configuration. Updates go through the
// embedded ConfigStore; readers load an immutable snapshot.
type Tunables struct {
	*ConfigStore
	planner atomic.Pointer[concurrency.PlannerConfig]
}

// NewTunables seeds the store from cfg.
func NewTunables(cfg api.Config) *Tunables {
	t := &Tunables{}
	initial := map[string]any{
		KeySmallDatasetThreshold: cfg.SmallDatasetThreshold,
		KeyChunkMultiplier:       cfg.ChunkMultiplier,
		KeyMinChunkSize:          cfg.MinChunkSize,
	}
	p := concurrency.PlannerFromConfig(cfg)
	t.planner.Store(&p)
	t.ConfigStore = NewConfigStore(initial, t.apply)
	return t
}

// Planner returns the current planner settings.
func (t *Tunables) Planner() concurrency.PlannerConfig {
	return *t.planner.Load()
}

// apply runs as the store validator, under the store lock. The parsed
// planner is published only when the merged map is accepted, and the store
// commits exactly that map right after.
func (t *Tunables) apply(m map[string]any) error {
	for k := range m {
		switch k {
		case KeySmallDatasetThreshold, KeyChunkMultiplier, KeyMinChunkSize:
		default:
			return api.ErrConfig.WithContext("unknown_key", k)
		}
	}
	p, err := plannerFromMap(m)
	if err != nil {
		return err
	}
	t.planner.Store(&p)
	return nil
}

func plannerFromMap(m map[string]any) (concurrency.PlannerConfig, error) {
	var p concurrency.PlannerConfig
	fields := []struct {
		key string
		dst *int
	}{
		{KeySmallDatasetThreshold, &p.SmallDatasetThreshold},
		{KeyChunkMultiplier, &p.ChunkMultiplier},
		{KeyMinChunkSize, &p.MinChunkSize},
	}
	for _, f := range fields {
		v, err := cast.ToIntE(m[f.key])
		if err != nil || v < 1 {
			return p, api.ErrConfig.WithContext(f.key, m[f.key])
		}
		*f.dst = v
	}
	return p, nil
}
