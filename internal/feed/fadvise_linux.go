//go:build linux

package feed

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel the feed file is read once, front to
// back. Errors are ignored; the hint is optional.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_WILLNEED)
}
