package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/ironpeak/raidsync/cmd/logger"
	"github.com/ironpeak/raidsync/pkg/block"
	"github.com/ironpeak/raidsync/pkg/hash"
	"github.com/ironpeak/raidsync/pkg/raid"
	"github.com/ironpeak/raidsync/pkg/state"
)

// Driver is the sync engine itself: it orchestrates disk handles, the
// RAID codec, the hasher pair, and the block map/info array across one
// contiguous index range.
type Driver struct {
	State    *state.State
	Parities []*parityFile
	Current  hash.Hasher
	Previous hash.Hasher
	Options  Options
	Progress ProgressReporter
	Metrics  *Metrics

	// Autosave, when set, is invoked at index boundaries according to
	// the stride computed from Options.AutosaveBytes. It is the
	// caller's responsibility to point it at state.Write against
	// whatever path the array is configured with.
	Autosave func() error

	// Live exposes the run's counters to a concurrent reader (for
	// example a status goroutine polling while sync runs). Run
	// allocates one if the caller left it nil.
	Live *Counters
}

// rehashSlot stages the current-scheme hash for a block that is being
// migrated, so the migration only commits alongside a real parity
// rewrite for that index.
type rehashSlot struct {
	newHash block.Hash
	block   *block.Block
}

// Result summarizes one driver run.
type Result struct {
	Errors          int64
	SilentErrors    int64
	BytesRead       int64
	BlocksProcessed int64
	Aborted         bool
}

// Failed applies the run's return policy, inverted when the caller
// declared it expects tolerable errors to occur.
func (r Result) Failed(expectRecoverable bool) bool {
	if expectRecoverable {
		return r.Errors+r.SilentErrors == 0
	}
	return r.Errors+r.SilentErrors > 0
}

// Run executes the main loop over [blockStart, blockEnd). The return
// value is named so the teardown defer below can fold a late
// handle-close error into it after every counter has its final value.
func (d *Driver) Run(blockStart, blockEnd int64) (res Result, err error) {
	st := d.State
	ndata := len(st.Disks)
	level := st.Level

	if d.Progress == nil {
		d.Progress = NoopProgress
	}
	if d.Metrics == nil {
		d.Metrics = newNoopMetrics()
	}
	if d.Live == nil {
		d.Live = &Counters{}
	}
	live := d.Live

	handles := make([]*diskHandle, ndata)
	for j := range handles {
		handles[j] = newDiskHandle(!d.Options.SkipSequential)
	}
	var aborted bool
	defer func() {
		for _, h := range handles {
			if closeErr := h.close(); closeErr != nil {
				live.errors.Inc()
			}
		}
		res = live.Snapshot()
		res.Aborted = aborted
	}()

	buffers := make([][]byte, ndata+level)
	for i := range buffers {
		buffers[i] = make([]byte, st.BlockSize)
	}
	if !d.Options.SkipSelf {
		if err := selfTestBuffers(buffers); err != nil {
			return Result{}, fmt.Errorf("buffer self-test: %w", err)
		}
	}

	rehandle := make([]rehashSlot, ndata)

	workBlocks := countWorkBlocks(st, blockStart, blockEnd)
	var autosaveStride int64
	if d.Options.AutosaveBytes > 0 {
		perIndex := int64(ndata) * st.BlockSize
		if perIndex > 0 {
			autosaveStride = d.Options.AutosaveBytes / perIndex
		}
	}

	d.Progress.Start(workBlocks)
	defer d.Progress.Finish()

	var countpos int64
	var doneSinceAutosave int64

	for i := blockStart; i < blockEnd; i++ {
		oneValid, oneInvalid := classify(st, i)
		if !(oneValid && oneInvalid) {
			clearDeletedAt(st, i)
			continue
		}

		info := st.Info[i]
		rehash := info.Rehash()
		parityNeedsUpdate := info.Bad()

		var errorOnThisBlock, silentErrorOnThisBlock bool

		for j := 0; j < ndata; j++ {
			rehandle[j] = rehashSlot{}
			buf := buffers[j]

			if !st.Disks[j].Present {
				clear(buf)
				continue
			}
			b := &st.Disks[j].Blocks[i]

			if !b.HasSamePresence() {
				parityNeedsUpdate = true
			}
			if !b.HasFile() {
				clear(buf)
				continue
			}

			ref := st.Disks[j].File(b.FileIdx)
			if ref == nil {
				reportTolerable(live, d.Metrics, "read", newSyncError(KindExternalModification, i, st.Disks[j].Name, ErrMissingFileRef))
				errorOnThisBlock = true
				continue
			}
			path := ref.Dir + "/" + ref.Name

			if !handles[j].isOpen(path) {
				if handles[j].file != nil {
					if err := handles[j].close(); err != nil {
						return Result{}, newSyncError(KindFatal, i, st.Disks[j].Name, err)
					}
				}
				if err := handles[j].open(path); err != nil {
					switch {
					case errors.Is(err, ErrMissingFile):
						reportTolerable(live, d.Metrics, "open", newSyncError(KindExternalModification, i, st.Disks[j].Name, ErrMissingFile))
						errorOnThisBlock = true
						continue
					case errors.Is(err, ErrNoAccess):
						reportTolerable(live, d.Metrics, "open", newSyncError(KindExternalModification, i, st.Disks[j].Name, ErrNoAccess))
						errorOnThisBlock = true
						continue
					default:
						return Result{}, newSyncError(KindFatal, i, st.Disks[j].Name, err)
					}
				}
			}

			if !handles[j].matches(ref.Size, ref.MtimeSec, ref.MtimeNsec, ref.Ino) {
				reportTolerable(live, d.Metrics, "stat", newSyncError(KindExternalModification, i, st.Disks[j].Name, ErrUnexpectedChange))
				errorOnThisBlock = true
				continue
			}

			if err := handles[j].read(b.Offset, buf); err != nil {
				return Result{}, newSyncError(KindFatal, i, st.Disks[j].Name, err)
			}
			live.bytesRead.Add(int64(len(buf)))
			d.Metrics.BytesRead.Add(float64(len(buf)))

			var computed block.Hash
			if rehash && d.Previous != nil {
				old := d.Previous.Sum(buf)
				rehandle[j] = rehashSlot{newHash: d.Current.Sum(buf), block: b}
				computed = old
			} else {
				computed = d.Current.Sum(buf)
			}

			if b.HasUpdatedHash() {
				if computed != b.Hash {
					reportTolerable(live, d.Metrics, "hash", newSyncError(KindSilentData, i, st.Disks[j].Name, ErrSilentData))
					silentErrorOnThisBlock = true
					continue
				}
			} else {
				if !parityNeedsUpdate && (!b.HasAnyHash() || computed != b.Hash) {
					parityNeedsUpdate = true
				}
				b.Hash = computed
			}
		}

		switch {
		case !errorOnThisBlock && !silentErrorOnThisBlock:
			if parityNeedsUpdate {
				if err := raid.Par(level, ndata, buffers); err != nil {
					return Result{}, newSyncError(KindFatal, i, "", err)
				}
				for l := 0; l < level; l++ {
					if err := d.Parities[l].write(i, buffers[ndata+l]); err != nil {
						logger.ParityWriteError(i, l)
						return Result{}, newSyncError(KindFatal, i, "", err)
					}
				}
				d.Metrics.ParityWrites.Add(float64(level))
				d.Metrics.BlocksProcessed.Inc()
			}

			for j := range st.Disks {
				if !st.Disks[j].Present {
					continue
				}
				b := &st.Disks[j].Blocks[i]
				switch b.State {
				case block.Empty:
				case block.Deleted:
					*b = block.Block{State: block.Empty, FileIdx: -1}
				default:
					b.State = block.Blk
				}
			}

			if parityNeedsUpdate {
				if rehash {
					for j := range rehandle {
						if rehandle[j].block != nil {
							rehandle[j].block.Hash = rehandle[j].newHash
						}
					}
				}
				st.Info[i] = block.MakeInfo(time.Now().Unix(), false, false)
			}
		case silentErrorOnThisBlock:
			st.Info[i] = st.Info[i].SetBad()
		}

		st.NeedWrite = true
		countpos++
		live.blocksProcessed.Store(countpos)

		if !d.Progress.Update(countpos) {
			aborted = true
			return
		}

		doneSinceAutosave++
		if autosaveStride > 0 && d.Autosave != nil {
			remaining := blockEnd - i - 1
			if doneSinceAutosave >= autosaveStride && remaining >= autosaveStride {
				d.Progress.Pause()
				err := d.Autosave()
				d.Progress.Resume()
				if err != nil {
					return Result{}, fmt.Errorf("autosave: %w", err)
				}
				doneSinceAutosave = 0
			}
		}
	}

	return Result{}, nil
}

// reportTolerable records one of the two non-fatal failure kinds
// (the ones the run continues past) against both the live counters
// and the metrics, then logs it. Which counter moves depends on
// se.Kind: a silent data error taints the block's content without the
// run itself faltering, so it is tallied separately from an external
// modification. Either kind skips the index's commit.
func reportTolerable(live *Counters, metrics *Metrics, sub string, se *SyncError) {
	if se.Kind == KindSilentData {
		live.silentErrors.Inc()
		metrics.SilentErrors.Inc()
	} else {
		live.errors.Inc()
		metrics.Errors.Inc()
	}
	logger.BlockError(se.Index, se.Disk, sub, se.Err.Error())
}

func classify(st *state.State, i int64) (oneValid, oneInvalid bool) {
	bad := st.Info[i].Bad()
	for j := range st.Disks {
		if !st.Disks[j].Present {
			continue
		}
		b := st.Disks[j].Blocks[i]
		if b.HasFile() {
			oneValid = true
		}
		if b.HasInvalidParity(bad) {
			oneInvalid = true
		}
	}
	return oneValid, oneInvalid
}

func clearDeletedAt(st *state.State, i int64) {
	for j := range st.Disks {
		if !st.Disks[j].Present {
			continue
		}
		b := &st.Disks[j].Blocks[i]
		if b.State == block.Deleted {
			*b = block.Block{State: block.Empty, FileIdx: -1}
			st.NeedWrite = true
		}
	}
}

func countWorkBlocks(st *state.State, start, end int64) int64 {
	var n int64
	for i := start; i < end; i++ {
		oneValid, oneInvalid := classify(st, i)
		if oneValid && oneInvalid {
			n++
		}
	}
	return n
}

// selfTestBuffers exercises every buffer with a known pattern before
// any real I/O begins, catching a misbehaving allocator early rather
// than blaming the first disk read for corruption that was already
// present in memory.
func selfTestBuffers(buffers [][]byte) error {
	const pattern = 0xA5
	for idx, buf := range buffers {
		for i := range buf {
			buf[i] = pattern
		}
		for i, v := range buf {
			if v != pattern {
				return fmt.Errorf("buffer %d corrupt at offset %d", idx, i)
			}
		}
		clear(buf)
	}
	return nil
}
