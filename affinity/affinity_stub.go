//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

func setAffinityPlatform(cpuID int) error { return ErrNotSupported }

func clearAffinityPlatform() error { return ErrNotSupported }

// Current is not implemented on this platform.
func Current() ([]int, error) { return nil, ErrNotSupported }
