// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control interface using control package primitives.

package adapters

import (
	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/control"
)

// ControlAdapter exposes scheduler tunables, counters and probes.
type ControlAdapter struct {
	tunables *control.Tunables
	stats    func() api.Stats
	debug    *control.DebugProbes
}

// NewControlAdapter wires tunables and a stats source into an api.Control.
// The scheduler.stats, scheduler.config and platform probes are registered up front.
func NewControlAdapter(tunables *control.Tunables, stats func() api.Stats) api.Control {
	adapter := &ControlAdapter{
		tunables: tunables,
		stats:    stats,
		debug:    control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	adapter.debug.RegisterProbe("scheduler.stats", func() any { return stats() })
	adapter.debug.RegisterProbe("scheduler.config", func() any { return tunables.GetSnapshot() })
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.tunables.GetSnapshot()
}

// SetConfig applies planner tunables; invalid or unknown keys yield api.ErrConfig.
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	return c.tunables.SetConfig(cfg)
}

func (c *ControlAdapter) Stats() map[string]any {
	combined := c.stats().Map()
	for k, v := range c.debug.DumpState() {
		if k == "scheduler.stats" {
			continue
		}
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) OnReload(fn func()) {
	c.tunables.OnReload(fn)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

func (c *ControlAdapter) DumpState() map[string]any {
	return c.debug.DumpState()
}
