package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/minio/cli"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ironpeak/raidsync/cmd/logger"
	"github.com/ironpeak/raidsync/pkg/state"
)

var syncFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "state",
		Usage: "path to the persisted block map and info array",
	},
	cli.StringFlag{
		Name:  "parity-dir",
		Usage: "directory containing parity.<level> files",
	},
	cli.Int64Flag{
		Name:  "block-start",
		Usage: "first block index to process",
		Value: 0,
	},
	cli.Int64Flag{
		Name:  "block-count",
		Usage: "number of blocks to process (0 means through block_max)",
		Value: 0,
	},
	cli.BoolFlag{
		Name:  "skip-self",
		Usage: "suppress the buffer self-test at startup",
	},
	cli.BoolFlag{
		Name:  "skip-sequential",
		Usage: "do not hint sequential access when opening data disks",
	},
	cli.BoolFlag{
		Name:  "skip-fallocate",
		Usage: "do not preallocate parity files",
	},
	cli.BoolFlag{
		Name:  "expect-recoverable",
		Usage: "invert the exit code: succeed only if tolerable errors occurred",
	},
	cli.Int64Flag{
		Name:  "autosave",
		Usage: "approximate bytes read between state snapshots (0 disables)",
		Value: 0,
	},
	cli.StringFlag{
		Name:  "hash-key",
		Usage: "64 hex digit key for the current (highwayhash) content hash; the all-zero key is used if omitted, matching its role as an integrity check rather than a MAC",
	},
	cli.BoolFlag{
		Name:  "json",
		Usage: "emit structured JSON log lines instead of plain text",
	},
	cli.BoolFlag{
		Name:  "quiet",
		Usage: "suppress non-essential output",
	},
}

func syncAction(c *cli.Context) error {
	if c.Bool("json") {
		logger.EnableJSON()
	} else if c.Bool("quiet") {
		logger.EnableQuiet()
	}

	statePath := c.String("state")
	if statePath == "" {
		return cli.NewExitError("--state is required", 1)
	}
	parityDir := c.String("parity-dir")
	if parityDir == "" {
		return cli.NewExitError("--parity-dir is required", 1)
	}

	lock, err := acquireRunLock(statePath, lockTimeout)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer lock.release()

	st, err := state.Load(statePath)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("loading state: %v", err), 1)
	}

	var currentKey [32]byte
	if raw := c.String("hash-key"); raw != "" {
		decoded, decodeErr := hex.DecodeString(raw)
		if decodeErr != nil || len(decoded) != len(currentKey) {
			return cli.NewExitError("--hash-key must be 64 hex digits", 1)
		}
		copy(currentKey[:], decoded)
	}

	metrics := NewMetrics(prometheus.DefaultRegisterer)
	bar := NewBarReporter()

	opts := RunOptions{
		ParityDir:  parityDir,
		BlockStart: c.Int64("block-start"),
		BlockCount: c.Int64("block-count"),
		StatePath:  statePath,
		CurrentKey: currentKey,
		Options: Options{
			SkipSelf:          c.Bool("skip-self"),
			SkipSequential:    c.Bool("skip-sequential"),
			SkipFallocate:     c.Bool("skip-fallocate"),
			ExpectRecoverable: c.Bool("expect-recoverable"),
			AutosaveBytes:     c.Int64("autosave"),
		},
		Progress: bar,
		Metrics:  metrics,
	}

	res, err := Sync(st, opts)
	if err != nil {
		logger.SummaryExit(false)
		return cli.NewExitError(err.Error(), 1)
	}

	if res.Aborted {
		logger.Warnf("%s", newSyncError(KindAborted, -1, "", ErrAborted).Error())
	}

	if st.NeedWrite {
		if writeErr := st.Write(statePath); writeErr != nil {
			logger.SummaryExit(false)
			return cli.NewExitError(fmt.Sprintf("writing state: %v", writeErr), 1)
		}
	}

	logger.SummaryCounts(res.Errors, res.SilentErrors)
	logger.SummaryBytes(res.BytesRead, res.BlocksProcessed)

	failed := res.Failed(opts.Options.ExpectRecoverable)
	logger.SummaryExit(!failed)
	if failed {
		return cli.NewExitError("sync completed with unrecoverable error state", 1)
	}
	return nil
}

// NewApp builds the CLI application: a single "sync" command dispatch,
// matching the spec's explicit non-goal of a richer config/CLI layer.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "raidsync"
	app.Usage = "bring RAID parity files up to date with their data disks"
	app.Commands = []cli.Command{
		{
			Name:   "sync",
			Usage:  "recompute parity and refresh the block hash index",
			Flags:  syncFlags,
			Action: syncAction,
		},
	}
	return app
}

// Main runs the CLI with args (typically os.Args) and returns the
// process exit code.
func Main(args []string) int {
	app := NewApp()
	if err := app.Run(args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
