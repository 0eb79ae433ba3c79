package control_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/spf13/cast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/control"
)

func TestConfigStoreMergeAndListeners(t *testing.T) {
	cs := control.NewConfigStore(map[string]any{"a": 1}, nil)
	calls := 0
	cs.OnReload(func() { calls++ })

	require.NoError(t, cs.SetConfig(map[string]any{"b": 2}))
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, cs.GetSnapshot())
	assert.Equal(t, 1, calls)

	v, ok := cs.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestConfigStoreRejectsInvalidUpdate(t *testing.T) {
	bad := errors.New("bad")
	cs := control.NewConfigStore(map[string]any{"a": 1}, func(m map[string]any) error {
		if m["a"] == 0 {
			return bad
		}
		return nil
	})
	called := false
	cs.OnReload(func() { called = true })

	assert.ErrorIs(t, cs.SetConfig(map[string]any{"a": 0}), bad)
	assert.False(t, called)
	assert.Equal(t, map[string]any{"a": 1}, cs.GetSnapshot())
}

func TestConfigStoreSnapshotIsCopy(t *testing.T) {
	cs := control.NewConfigStore(map[string]any{"a": 1}, nil)
	snap := cs.GetSnapshot()
	snap["a"] = 99
	v, _ := cs.Get("a")
	assert.Equal(t, 1, v)
}

func TestTunablesReload(t *testing.T) {
	tun := control.NewTunables(api.DefaultConfig())
	assert.Equal(t, 1000, tun.Planner().SmallDatasetThreshold)

	require.NoError(t, tun.SetConfig(map[string]any{
		control.KeyChunkMultiplier: "8",
		control.KeyMinChunkSize:    float64(16),
	}))
	p := tun.Planner()
	assert.Equal(t, 8, p.ChunkMultiplier)
	assert.Equal(t, 16, p.MinChunkSize)
	assert.Equal(t, 1000, p.SmallDatasetThreshold)
}

func TestTunablesValidation(t *testing.T) {
	tun := control.NewTunables(api.DefaultConfig())
	assert.ErrorIs(t, tun.SetConfig(map[string]any{control.KeyMinChunkSize: 0}), api.ErrConfig)
	assert.ErrorIs(t, tun.SetConfig(map[string]any{"max_platform_threads": 4}), api.ErrConfig)
	assert.ErrorIs(t, tun.SetConfig(map[string]any{control.KeyChunkMultiplier: "many"}), api.ErrConfig)
	assert.Equal(t, 4, tun.Planner().MinChunkSize)
}

func TestTunablesPlannerTracksCommittedSnapshot(t *testing.T) {
	tun := control.NewTunables(api.DefaultConfig())
	var (
		mu   sync.Mutex
		seen []int
	)
	tun.OnReload(func() {
		mu.Lock()
		seen = append(seen, tun.Planner().MinChunkSize)
		mu.Unlock()
	})

	require.NoError(t, tun.SetConfig(map[string]any{control.KeyMinChunkSize: 32}))
	mu.Lock()
	assert.Equal(t, []int{32}, seen)
	mu.Unlock()

	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = tun.SetConfig(map[string]any{control.KeyMinChunkSize: n})
		}(i)
	}
	wg.Wait()

	v, ok := tun.Get(control.KeyMinChunkSize)
	require.True(t, ok)
	assert.Equal(t, cast.ToInt(v), tun.Planner().MinChunkSize)
}
