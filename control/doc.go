// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration loading, hot-reloadable tunables, Prometheus telemetry and
// debug introspection for the hioload-vt scheduler.
//
// # Configuration
//
// LoadConfig layers three sources, lowest precedence first:
//
//	struct defaults (creasty/defaults)  ->  config file (viper)  ->  VT_* env
//
// The result is validated with api.Config.Validate.
//
// # Tunables
//
// Planner settings may change at runtime through Tunables (and the
// api.Control surface built on it). Every data-parallel call reads the
// current snapshot; tasks already planned are unaffected.
//
//	┌─────────────────────────┬─────────┐
//	│ Key                     │ Default │
//	├─────────────────────────┼─────────┤
//	│ small_dataset_threshold │ 1000    │
//	│ chunk_multiplier        │ 4       │
//	│ min_chunk_size          │ 4       │
//	└─────────────────────────┴─────────┘
//
// # Metrics
//
// StatsCollector exports scheduler counters as Prometheus metrics at scrape
// time; TaskMetrics records queue-wait and run-time histograms per task.
package control
