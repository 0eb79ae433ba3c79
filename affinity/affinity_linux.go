//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity through
// sched_setaffinity on the calling thread (tid 0).

package affinity

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// maxCPUs is the bit width of unix.CPUSet.
const maxCPUs = 1024

var (
	processMaskOnce sync.Once
	processMask     unix.CPUSet
	processMaskErr  error
)

func loadProcessMask() (unix.CPUSet, error) {
	processMaskOnce.Do(func() {
		processMaskErr = unix.SchedGetaffinity(0, &processMask)
	})
	return processMask, processMaskErr
}

func setAffinityPlatform(cpuID int) error {
	if cpuID >= maxCPUs {
		return fmt.Errorf("affinity: cpu %d out of range", cpuID)
	}
	_, _ = loadProcessMask()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cpu %d: %w", cpuID, err)
	}
	return nil
}

func clearAffinityPlatform() error {
	mask, err := loadProcessMask()
	if err != nil {
		return fmt.Errorf("affinity: read process mask: %w", err)
	}
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity reset: %w", err)
	}
	return nil
}

// Current returns the CPUs the calling thread may run on.
func Current() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("affinity: sched_getaffinity: %w", err)
	}
	n := set.Count()
	cpus := make([]int, 0, n)
	for i := 0; i < maxCPUs && len(cpus) < n; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
