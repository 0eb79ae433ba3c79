// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with validated updates and reload listeners.

package control

import (
	"maps"
	"sync"
)

// ConfigStore is a dynamic key/value map with snapshot reads and listener
// support. An optional validator sees the merged candidate before it is
// committed; a rejected update leaves the store unchanged.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
	validate  func(map[string]any) error
}

// NewConfigStore initializes a store seeded with initial.
func NewConfigStore(initial map[string]any, validate func(map[string]any) error) *ConfigStore {
	cfg := make(map[string]any, len(initial))
	maps.Copy(cfg, initial)
	return &ConfigStore{config: cfg, validate: validate}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return maps.Clone(cs.config)
}

// Get returns a single value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges newCfg, validates the result and notifies listeners.
// Listeners run synchronously, after the lock is released, in registration
// order.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	next := maps.Clone(cs.config)
	maps.Copy(next, newCfg)
	if cs.validate != nil {
		if err := cs.validate(next); err != nil {
			cs.mu.Unlock()
			return err
		}
	}
	cs.config = next
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnReload registers a listener hook called after every committed update.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
