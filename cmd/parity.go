package cmd

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// parityFile is the stateful handle the driver holds open for one
// parity level for the life of a run, per spec section 4.4.
type parityFile struct {
	file      *os.File
	path      string
	blockSize int64
}

// createParityFile opens path for read/write, creating it if absent,
// and reports its current size so the caller can detect shrinkage
// against a previously recorded size (spec section 4.2).
func createParityFile(path string, blockSize int64) (*parityFile, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // array configuration controls the path
	if err != nil {
		return nil, 0, fmt.Errorf("parity: opening %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("parity: stat %q: %w", path, err)
	}
	return &parityFile{file: f, path: path, blockSize: blockSize}, info.Size(), nil
}

// chsize resizes the parity file to newSize bytes, preferring to
// preallocate the grown region with Fallocate so that later
// block-aligned writes never hit ENOSPC partway through a level.
// skipFallocate falls back to a plain truncate, per spec's
// skip_fallocate option.
func (p *parityFile) chsize(newSize int64, skipFallocate bool) (int64, error) {
	if !skipFallocate {
		// Fallocate is unsupported on some filesystems (e.g. tmpfs,
		// some network mounts), so its error is ignored rather than
		// failing the whole run over a missing hint. It never shrinks
		// a file, so the truncate below always runs to set the exact
		// size.
		_ = unix.Fallocate(int(p.file.Fd()), 0, 0, newSize)
	}
	if err := p.file.Truncate(newSize); err != nil {
		return 0, fmt.Errorf("parity: resize %q: %w", p.path, err)
	}
	return newSize, nil
}

// write stores buf at the block-aligned offset for blockIndex. len(buf)
// must equal p.blockSize.
func (p *parityFile) write(blockIndex int64, buf []byte) error {
	offset := blockIndex * p.blockSize
	if _, err := p.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: %w", ErrParityWrite, err)
	}
	return nil
}

// sync fsyncs the parity file; it must not return until the writes
// issued so far are durable.
func (p *parityFile) sync() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("parity: sync %q: %w", p.path, err)
	}
	return nil
}

// close closes the parity file.
func (p *parityFile) close() error {
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("parity: close %q: %w", p.path, err)
	}
	return nil
}
