//go:build !linux

package feed

import "os"

func adviseSequential(*os.File) {}
