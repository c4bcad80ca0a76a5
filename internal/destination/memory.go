package destination

import (
	"math"
	"runtime/debug"
)

// DefaultMemoryFraction is the share of available memory the buffer pool may
// hold when no absolute budget is configured.
const DefaultMemoryFraction = 0.2

// fallbackMemory is assumed when the platform reports nothing usable.
const fallbackMemory = 2 << 30

// minBudget keeps tiny containers from ending up with a budget smaller than
// a typical record.
const minBudget = 16 << 20

// AvailableMemory returns the memory the process may use: the lowest of the
// Go soft limit (GOMEMLIMIT), the cgroup limit and physical RAM.
func AvailableMemory() int64 {
	avail := systemMemory()
	if avail <= 0 {
		avail = fallbackMemory
	}
	if lim := debug.SetMemoryLimit(-1); lim > 0 && lim < math.MaxInt64 && lim < avail {
		avail = lim
	}
	return avail
}

// MemoryBudget resolves the pool budget. An absolute budget wins; otherwise
// fraction (default DefaultMemoryFraction) of available is used.
func MemoryBudget(absolute int64, fraction float64, available int64) int64 {
	if absolute > 0 {
		return absolute
	}
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultMemoryFraction
	}
	b := int64(float64(available) * fraction)
	if b < minBudget {
		b = minBudget
	}
	return b
}
