// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ShutdownPolicy selects what happens to queued tasks on shutdown.
type ShutdownPolicy string

const (
	// ShutdownDrain runs every queued task before the workers exit.
	ShutdownDrain ShutdownPolicy = "drain"
	// ShutdownCancel cancels queued tasks and signals running ones.
	ShutdownCancel ShutdownPolicy = "cancel"
)

// GracefulShutdown stops a component and releases its resources. With
// wait set the call returns only after every worker has exited.
type GracefulShutdown interface {
	Shutdown(wait bool) error
}

// Valid reports whether p is a known policy.
func (p ShutdownPolicy) Valid() bool {
	return p == ShutdownDrain || p == ShutdownCancel
}
