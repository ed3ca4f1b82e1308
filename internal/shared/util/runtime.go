package util

import (
	"runtime"
)

// HeapAllocMB returns the current heap allocation in MB.
func HeapAllocMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}

// WorkerCount returns n when positive and the number of usable CPUs otherwise.
func WorkerCount(n int) int {
	if n > 0 {
		return n
	}
	if cpus := runtime.NumCPU(); cpus > 0 {
		return cpus
	}
	return 1
}
