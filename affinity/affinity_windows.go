//go:build windows
// +build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific implementation for setting thread CPU affinity.

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

var procSetThreadAffinityMask = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadAffinityMask")

func setThreadMask(mask uintptr) error {
	ret, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if ret == 0 {
		return fmt.Errorf("affinity: SetThreadAffinityMask failed: %w", err)
	}
	return nil
}

func setAffinityPlatform(cpuID int) error {
	return setThreadMask(uintptr(1) << uint(cpuID))
}

func clearAffinityPlatform() error {
	var mask uintptr
	for i := 0; i < runtime.NumCPU() && i < 64; i++ {
		mask |= uintptr(1) << uint(i)
	}
	return setThreadMask(mask)
}

// Current is not implemented on Windows.
func Current() ([]int, error) {
	return nil, ErrNotSupported
}
