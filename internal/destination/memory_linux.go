//go:build linux

package destination

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var cgroupLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",                   // cgroup v2
	"/sys/fs/cgroup/memory/memory.limit_in_bytes", // cgroup v1
}

// systemMemory is physical RAM capped by the cgroup limit, if any.
func systemMemory() int64 {
	var total int64
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		total = int64(si.Totalram) * int64(si.Unit)
	}
	if lim := cgroupLimit(); lim > 0 && (total <= 0 || lim < total) {
		total = lim
	}
	return total
}

func cgroupLimit() int64 {
	for _, p := range cgroupLimitFiles {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if v, ok := parseCgroupLimit(string(b)); ok {
			return v
		}
	}
	return 0
}

// parseCgroupLimit reads a cgroup memory limit file. "max" and the v1
// "unlimited" sentinel (close to MaxInt64) mean no limit.
func parseCgroupLimit(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "max" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 || v >= 1<<62 {
		return 0, false
	}
	return v, true
}
