// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity of platform threads. Platform-specific
// implementations are located in separate files guarded by build tags.

package affinity

import (
	"errors"
	"runtime"
)

// ErrNotSupported is returned where the OS offers no thread affinity control.
var ErrNotSupported = errors.New("affinity: not supported on this platform")

// SetAffinity pins the current OS thread to the given logical CPU. The caller
// must already hold runtime.LockOSThread, otherwise the Go scheduler may move
// the goroutine to another thread right after the call.
func SetAffinity(cpuID int) error {
	if cpuID < 0 {
		return errors.New("affinity: negative cpu id")
	}
	return setAffinityPlatform(cpuID)
}

// ClearAffinity restores the affinity the process started with.
func ClearAffinity() error {
	return clearAffinityPlatform()
}

// CPUForWorker maps a worker index round-robin onto the CPUs this process
// is allowed to use.
func CPUForWorker(workerID int) int {
	if cpus, err := Current(); err == nil && len(cpus) > 0 {
		return cpus[workerID%len(cpus)]
	}
	n := runtime.NumCPU()
	if n <= 0 {
		return 0
	}
	return workerID % n
}
