package cmd

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints to the kernel that reads through f will be
// sequential, improving readahead for the common case of scanning a
// data disk block by block. Advisory only: a failure here is never
// surfaced, matching the teacher's treatment of readahead hints as
// best-effort.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
