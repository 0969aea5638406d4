package cmd

import (
	"fmt"

	"github.com/ironpeak/raidsync/pkg/hash"
	"github.com/ironpeak/raidsync/pkg/state"
)

func parityPath(dir string, level int) string {
	return fmt.Sprintf("%s/parity.%d", dir, level)
}

// ParityRequiredBlocks is block_max: the length every disk's block map
// already has, and therefore the length every parity file must reach.
func ParityRequiredBlocks(st *state.State) int64 {
	return st.BlockMax
}

// RunOptions bundles the entry point's configuration on top of the
// driver-level Options: where parity files live, which range to
// process, and where (if anywhere) to autosave.
type RunOptions struct {
	ParityDir  string
	BlockStart int64
	BlockCount int64 // 0 means "through block_max"
	StatePath  string
	CurrentKey [32]byte
	Options    Options
	Progress   ProgressReporter
	Metrics    *Metrics
}

// Sync is the entry point spec section 4.2 describes: it owns the
// parity files' create/resize/flush/close lifecycle around one
// invocation of the driver.
func Sync(st *state.State, opts RunOptions) (Result, error) {
	blockMax := ParityRequiredBlocks(st)
	blockEnd := blockMax
	if opts.BlockCount > 0 && opts.BlockStart+opts.BlockCount < blockMax {
		blockEnd = opts.BlockStart + opts.BlockCount
	}

	parities := make([]*parityFile, st.Level)
	for l := 0; l < st.Level; l++ {
		path := parityPath(opts.ParityDir, l)
		p, onDiskSize, err := createParityFile(path, st.BlockSize)
		if err != nil {
			closeOpened(parities)
			return Result{}, newSyncError(KindFatal, -1, path, err)
		}
		parities[l] = p

		if onDiskSize < st.ParitySize[l] {
			closeOpened(parities)
			return Result{}, newSyncError(KindFatal, -1, path, ErrParityShrunk)
		}

		wantSize := blockMax * st.BlockSize
		actual, err := p.chsize(wantSize, opts.Options.SkipFallocate)
		if err != nil {
			closeOpened(parities)
			return Result{}, newSyncError(KindFatal, -1, path, err)
		}
		st.ParitySize[l] = actual
	}

	var res Result
	var runErr error
	if opts.BlockStart < blockMax {
		// Both schemes are always available: which one applies to a
		// given block is decided per index, purely from info[i]'s
		// rehash bit (cmd/sync.go), never by a run-wide flag.
		d := &Driver{
			State:    st,
			Parities: parities,
			Current:  hash.NewCurrent(opts.CurrentKey),
			Previous: hash.NewPrevious(),
			Options:  opts.Options,
			Progress: opts.Progress,
			Metrics:  opts.Metrics,
		}
		if opts.StatePath != "" {
			d.Autosave = func() error { return st.Write(opts.StatePath) }
		}

		res, runErr = d.Run(opts.BlockStart, blockEnd)
	}

	if err := closeAll(parities, opts.ParityDir); err != nil {
		if runErr == nil {
			runErr = err
		}
	}

	return res, runErr
}

func closeOpened(parities []*parityFile) {
	for _, p := range parities {
		if p != nil {
			_ = p.close()
		}
	}
}

// closeAll flushes and closes every parity file regardless of how many
// succeed, so a failure on level 0 never leaks the handle for level 1.
func closeAll(parities []*parityFile, dir string) error {
	var first error
	for l, p := range parities {
		if p == nil {
			continue
		}
		if err := p.sync(); err != nil && first == nil {
			first = newSyncError(KindFatal, -1, parityPath(dir, l), err)
		}
		if err := p.close(); err != nil && first == nil {
			first = newSyncError(KindFatal, -1, parityPath(dir, l), err)
		}
	}
	return first
}
