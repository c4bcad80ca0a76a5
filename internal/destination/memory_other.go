//go:build !linux

package destination

// systemMemory is unknown off Linux; AvailableMemory falls back to a fixed
// size or GOMEMLIMIT.
func systemMemory() int64 { return 0 }
