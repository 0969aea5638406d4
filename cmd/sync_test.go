package cmd

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ironpeak/raidsync/pkg/block"
	"github.com/ironpeak/raidsync/pkg/hash"
	"github.com/ironpeak/raidsync/pkg/state"
)

var zeroKey [32]byte

func writeDataFile(t *testing.T, dir, name string, content []byte) state.FileRef {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	sys, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)

	return state.FileRef{
		Name:      name,
		Dir:       dir,
		Size:      info.Size(),
		MtimeSec:  sys.Mtim.Sec,
		MtimeNsec: sys.Mtim.Nsec,
		Ino:       sys.Ino,
	}
}

func runOpts(t *testing.T, st *state.State, parityDir string) RunOptions {
	t.Helper()
	return RunOptions{
		ParityDir:  parityDir,
		BlockStart: 0,
		BlockCount: 0,
		CurrentKey: zeroKey,
		Options:    Options{SkipSelf: true},
	}
}

// TestSyncNoOp is scenario S1: two disks, one parity level, a single
// stable BLK block with a correct hash. Nothing should be rewritten.
func TestSyncNoOp(t *testing.T) {
	dataDir, parityDir := t.TempDir(), t.TempDir()
	cur := hash.NewCurrent(zeroKey)

	contentA := make([]byte, 4096)
	contentB := make([]byte, 4096)
	for i := range contentA {
		contentA[i] = 0x11
		contentB[i] = 0x22
	}
	refA := writeDataFile(t, dataDir, "a.bin", contentA)
	refB := writeDataFile(t, dataDir, "b.bin", contentB)

	st := state.New(4096, 1, 1, 2)
	st.Disks[0].Files = []state.FileRef{refA}
	st.Disks[1].Files = []state.FileRef{refB}
	st.Disks[0].Blocks[0] = block.Block{State: block.Blk, FileIdx: 0, HashValid: true, Hash: cur.Sum(contentA)}
	st.Disks[1].Blocks[0] = block.Block{State: block.Blk, FileIdx: 0, HashValid: true, Hash: cur.Sum(contentB)}

	res, err := Sync(st, runOpts(t, st, parityDir))
	require.NoError(t, err)
	require.Equal(t, int64(0), res.BlocksProcessed)
	require.Equal(t, int64(0), res.Errors)
	require.False(t, st.NeedWrite)
}

// TestSyncNewBlock is scenario S2.
func TestSyncNewBlock(t *testing.T) {
	dataDir, parityDir := t.TempDir(), t.TempDir()
	cur := hash.NewCurrent(zeroKey)

	content := make([]byte, 4096)
	for i := range content {
		content[i] = 0xAA
	}
	ref := writeDataFile(t, dataDir, "a.bin", content)

	st := state.New(4096, 6, 1, 2)
	st.Disks[0].Files = []state.FileRef{ref}
	st.Disks[0].Blocks[5] = block.Block{State: block.New, FileIdx: 0}
	// disk B stays EMPTY at every index.

	res, err := Sync(st, runOpts(t, st, parityDir))
	require.NoError(t, err)
	require.Equal(t, int64(1), res.BlocksProcessed)
	require.Equal(t, int64(0), res.Errors)

	require.Equal(t, block.Blk, st.Disks[0].Blocks[5].State)
	require.Equal(t, cur.Sum(content), st.Disks[0].Blocks[5].Hash)
	require.Greater(t, st.Info[5].Time(), int64(0))

	parity, err := os.ReadFile(filepath.Join(parityDir, "parity.0")) //nolint:gosec
	require.NoError(t, err)
	require.Equal(t, content, parity[4096*5:4096*6])
}

// TestSyncDeletedCleanup is scenario S3.
func TestSyncDeletedCleanup(t *testing.T) {
	_, parityDir := t.TempDir(), t.TempDir()

	st := state.New(4096, 10, 1, 2)
	st.Disks[0].Blocks[9] = block.Block{State: block.Deleted, FileIdx: -1}

	res, err := Sync(st, runOpts(t, st, parityDir))
	require.NoError(t, err)
	require.Equal(t, int64(0), res.BlocksProcessed)
	require.Equal(t, block.Empty, st.Disks[0].Blocks[9].State)
	require.True(t, st.NeedWrite)
}

// TestSyncSilentDataError is scenario S4: a stable BLK block's content
// was altered without the block record changing state. A second,
// ordinarily-changing disk in the same column forces the index to be
// processed so the corruption is actually discovered.
func TestSyncSilentDataError(t *testing.T) {
	dataDir, parityDir := t.TempDir(), t.TempDir()

	contentA := []byte("this is the real on-disk content of block A")
	padded := make([]byte, 4096)
	copy(padded, contentA)
	refA := writeDataFile(t, dataDir, "a.bin", padded)
	refB := writeDataFile(t, dataDir, "b.bin", make([]byte, 4096))

	st := state.New(4096, 1, 1, 2)
	st.Disks[0].Files = []state.FileRef{refA}
	st.Disks[1].Files = []state.FileRef{refB}
	// Recorded hash does not match the real content: simulates
	// corruption that happened without going through this engine.
	var wrongHash block.Hash
	wrongHash[0] = 0xFF
	st.Disks[0].Blocks[0] = block.Block{State: block.Blk, FileIdx: 0, HashValid: true, Hash: wrongHash}
	st.Disks[1].Blocks[0] = block.Block{State: block.Chg, FileIdx: 0}

	res, err := Sync(st, runOpts(t, st, parityDir))
	require.NoError(t, err)
	require.Equal(t, int64(1), res.SilentErrors)
	require.True(t, st.Info[0].Bad())
	require.Equal(t, block.Blk, st.Disks[0].Blocks[0].State, "a silently-errored block is left exactly as it was")

	parity, statErr := os.Stat(filepath.Join(parityDir, "parity.0"))
	require.NoError(t, statErr)
	allZero := make([]byte, parity.Size())
	raw, err := os.ReadFile(filepath.Join(parityDir, "parity.0")) //nolint:gosec
	require.NoError(t, err)
	require.Equal(t, allZero, raw, "parity must not be rewritten when a slot silently errors")

	require.True(t, res.Failed(false))
}

// TestSyncExternalModification is scenario S6: a recorded BLK block's
// file no longer matches the size it was recorded with. A second disk
// with a NEW block forces the column to be processed.
func TestSyncExternalModification(t *testing.T) {
	dataDir, parityDir := t.TempDir(), t.TempDir()

	refA := writeDataFile(t, dataDir, "a.bin", make([]byte, 4096))
	refA.Size = 2048 // diverges from the file's real, current size
	refB := writeDataFile(t, dataDir, "b.bin", make([]byte, 4096))

	st := state.New(4096, 1, 1, 2)
	st.Disks[0].Files = []state.FileRef{refA}
	st.Disks[1].Files = []state.FileRef{refB}
	st.Disks[0].Blocks[0] = block.Block{State: block.Blk, FileIdx: 0, HashValid: true}
	st.Disks[1].Blocks[0] = block.Block{State: block.New, FileIdx: 0}

	res, err := Sync(st, runOpts(t, st, parityDir))
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Errors)
	require.Equal(t, block.New, st.Disks[1].Blocks[0].State, "the index's commit is skipped entirely, not partially applied")
	require.True(t, res.Failed(false))
}

// TestSyncRehashDoesNotUpgradeWithoutAnotherTrigger exercises the
// documented open question in section 9: a stable BLK block pending
// rehash, with no other invalidity trigger on its index, is never even
// visited, so the hash scheme upgrade does not happen and the rehash
// bit is not cleared.
func TestSyncRehashDoesNotUpgradeWithoutAnotherTrigger(t *testing.T) {
	dataDir, parityDir := t.TempDir(), t.TempDir()
	prev := hash.NewPrevious()

	content := []byte("content hashed under the previous scheme")
	padded := make([]byte, 4096)
	copy(padded, content)
	ref := writeDataFile(t, dataDir, "a.bin", padded)

	st := state.New(4096, 1, 1, 1)
	st.Disks[0].Files = []state.FileRef{ref}
	st.Disks[0].Blocks[0] = block.Block{State: block.Blk, FileIdx: 0, HashValid: true, Hash: prev.Sum(padded)}
	st.Info[0] = block.MakeInfo(time.Now().Unix(), false, true)

	opts := runOpts(t, st, parityDir)
	res, err := Sync(st, opts)
	require.NoError(t, err)

	require.Equal(t, int64(0), res.BlocksProcessed, "a stable rehash-pending block with no other trigger is never visited")
	require.Equal(t, prev.Sum(padded), st.Disks[0].Blocks[0].Hash, "hash is left in the previous scheme")
	require.True(t, st.Info[0].Rehash(), "rehash bit is not cleared until something else forces reprocessing")
}

// TestSyncRehashCommitsWhenTriggeredByAnotherSlot covers the same index
// once some other slot does force it into the per-slot read phase: the
// rehash-pending block's unchanged content must be checked against its
// previous-scheme hash, not misread as silently corrupted, and the
// migration to the current scheme must commit alongside the rewrite.
func TestSyncRehashCommitsWhenTriggeredByAnotherSlot(t *testing.T) {
	dataDir, parityDir := t.TempDir(), t.TempDir()
	prev := hash.NewPrevious()
	cur := hash.NewCurrent(zeroKey)

	content := []byte("content hashed under the previous scheme")
	padded := make([]byte, 4096)
	copy(padded, content)
	refA := writeDataFile(t, dataDir, "a.bin", padded)
	refB := writeDataFile(t, dataDir, "b.bin", make([]byte, 4096))

	st := state.New(4096, 1, 1, 2)
	st.Disks[0].Files = []state.FileRef{refA}
	st.Disks[1].Files = []state.FileRef{refB}
	st.Disks[0].Blocks[0] = block.Block{State: block.Blk, FileIdx: 0, HashValid: true, Hash: prev.Sum(padded)}
	st.Info[0] = block.MakeInfo(time.Now().Unix(), false, true)
	// Disk B's NEW block is what forces the column to be processed.
	st.Disks[1].Blocks[0] = block.Block{State: block.New, FileIdx: 0}

	res, err := Sync(st, runOpts(t, st, parityDir))
	require.NoError(t, err)

	require.Equal(t, int64(1), res.BlocksProcessed)
	require.Equal(t, int64(0), res.SilentErrors, "unchanged content hashed under the previous scheme must not look corrupt")
	require.Equal(t, cur.Sum(padded), st.Disks[0].Blocks[0].Hash, "hash migrates to the current scheme")
	require.False(t, st.Info[0].Rehash(), "rehash bit clears once the migration actually commits")
}
