// File: api/stats.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Stats is a point-in-time snapshot of the scheduler counters.
//
// Completed counts tasks whose payload ran to the end, successfully or not;
// Failed is the subset that ended in error. Cancelled tasks are counted
// separately and never in Completed.
type Stats struct {
	Created   uint64 `json:"created"`
	Active    int64  `json:"active"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Stolen    uint64 `json:"stolen"`
	Queued    int64  `json:"queued"`
	Inline    uint64 `json:"inline"`
	Replaced  uint64 `json:"replaced"`

	PlatformThreads int  `json:"platform_threads"`
	BlockingWorkers int  `json:"blocking_workers"`
	Running         bool `json:"running"`
}

// Map flattens the snapshot for the Control surface and debug probes.
func (s Stats) Map() map[string]any {
	return map[string]any{
		"created":          s.Created,
		"active":           s.Active,
		"completed":        s.Completed,
		"failed":           s.Failed,
		"cancelled":        s.Cancelled,
		"stolen":           s.Stolen,
		"queued":           s.Queued,
		"inline":           s.Inline,
		"replaced":         s.Replaced,
		"platform_threads": s.PlatformThreads,
		"blocking_workers": s.BlockingWorkers,
		"running":          s.Running,
	}
}
