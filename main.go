// Command raidsync recomputes RAID parity files and refreshes the
// block-level hash index for a snapshot-style array of data disks.
package main

import (
	"os"

	"github.com/ironpeak/raidsync/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
