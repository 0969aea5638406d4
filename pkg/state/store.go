// Package state is the concrete implementation of the "external state
// store" spec section 1 treats as an outside collaborator: it owns the
// persisted block map and per-block info array, and the load/write
// round trip between them and the in-memory arenas the sync driver
// operates on.
//
// The binary layout and the load/save shape are grounded on
// calvinalkan-agent-task's cache_binary.go (magic + version header,
// fixed-size records, atomic snapshot write); unlike that cache, which
// is read via mmap, the block map is small enough relative to the data
// it protects that the whole snapshot is read into memory up front.
package state

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ironpeak/raidsync/pkg/block"
)

const (
	magic        = "RSY1"
	formatVersion = uint16(1)
)

// Errors returned by Load.
var (
	ErrBadMagic   = errors.New("state: not a raidsync state file")
	ErrBadVersion = errors.New("state: unsupported state file version")
	ErrTruncated  = errors.New("state: truncated state file")
)

// FileRef is a back-reference to a data file, owned by the Disk arena it
// belongs to. Blocks reference files by index (FileIdx), never by
// pointer, per spec section 9's "Cyclic references" design note.
type FileRef struct {
	Name      string
	Dir       string
	Size      int64
	MtimeSec  int64
	MtimeNsec int64
	Ino       uint64
}

// Disk is one data-disk slot's arena: its own file table and its dense
// block array. A Disk with Present == false models a hole in the array.
type Disk struct {
	Present bool
	Name    string
	Dir     string
	Files   []FileRef
	Blocks  []block.Block
}

// File resolves a block's FileIdx into the owning FileRef, or nil if the
// block has no file reference.
func (d *Disk) File(idx int32) *FileRef {
	if idx < 0 || int(idx) >= len(d.Files) {
		return nil
	}
	return &d.Files[idx]
}

// State is everything the sync driver needs about the array: per-slot
// block maps, the global info array, and bookkeeping the driver mutates
// as it runs (NeedWrite).
type State struct {
	BlockSize int64
	BlockMax  int64
	Level     int
	Disks     []Disk
	Info      []block.Info

	// ParitySize records the on-disk length (in bytes) of each parity
	// file as of the last successful state write, used by the sync
	// entry point to detect unexpected shrinkage (spec section 4.2).
	ParitySize []int64

	// NeedWrite is set whenever the driver mutates the block map or
	// info array; the caller consults it to decide whether Write is
	// worth calling at teardown.
	NeedWrite bool
}

// New builds an empty state for diskCount slots (all present, all
// blocks Empty) over [0, blockMax).
func New(blockSize, blockMax int64, level, diskCount int) *State {
	disks := make([]Disk, diskCount)
	for j := range disks {
		disks[j] = Disk{
			Present: true,
			Blocks:  make([]block.Block, blockMax),
		}
		for i := range disks[j].Blocks {
			disks[j].Blocks[i].FileIdx = -1
		}
	}
	return &State{
		BlockSize:  blockSize,
		BlockMax:   blockMax,
		Level:      level,
		Disks:      disks,
		Info:       make([]block.Info, blockMax),
		ParitySize: make([]int64, level),
	}
}

// Write atomically snapshots the state to path, per spec section 1's
// state-store write/need_write contract. On success NeedWrite is
// cleared.
func (s *State) Write(path string) error {
	var buf bytes.Buffer
	if err := s.encode(&buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("state: writing snapshot: %w", err)
	}
	s.NeedWrite = false
	return nil
}

// Load reads a previously written state snapshot from path.
func Load(path string) (*State, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-supplied array configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	s, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("state: loading snapshot: %w", err)
	}
	return s, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (s *State) encode(w io.Writer) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	header := []interface{}{
		formatVersion,
		uint16(len(s.Disks)),
		uint32(s.Level),
		s.BlockSize,
		s.BlockMax,
	}
	for _, f := range header {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	for _, sz := range s.ParitySize {
		if err := binary.Write(w, binary.LittleEndian, sz); err != nil {
			return err
		}
	}

	for _, info := range s.Info {
		if err := binary.Write(w, binary.LittleEndian, uint64(info)); err != nil {
			return err
		}
	}

	for _, d := range s.Disks {
		if err := encodeDisk(w, d); err != nil {
			return err
		}
	}
	return nil
}

func encodeDisk(w io.Writer, d Disk) error {
	present := byte(0)
	if d.Present {
		present = 1
	}
	if err := binary.Write(w, binary.LittleEndian, present); err != nil {
		return err
	}
	if err := writeString(w, d.Name); err != nil {
		return err
	}
	if err := writeString(w, d.Dir); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(d.Files))); err != nil {
		return err
	}
	for _, f := range d.Files {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := writeString(w, f.Dir); err != nil {
			return err
		}
		fields := []interface{}{f.Size, f.MtimeSec, f.MtimeNsec, f.Ino}
		for _, v := range fields {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
	}
	for _, b := range d.Blocks {
		if err := encodeBlock(w, b); err != nil {
			return err
		}
	}
	return nil
}

func encodeBlock(w io.Writer, b block.Block) error {
	hashValid := byte(0)
	if b.HashValid {
		hashValid = 1
	}
	fields := []interface{}{byte(b.State), b.FileIdx, b.Offset, b.Hash, hashValid}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func decode(r io.Reader) (*State, error) {
	var magicBuf [4]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, ErrTruncated
	}
	if string(magicBuf[:]) != magic {
		return nil, ErrBadMagic
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, ErrTruncated
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, version, formatVersion)
	}

	var diskCount uint16
	var level uint32
	var blockSize, blockMax int64
	for _, dst := range []interface{}{&diskCount, &level, &blockSize, &blockMax} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, ErrTruncated
		}
	}

	s := &State{
		BlockSize:  blockSize,
		BlockMax:   blockMax,
		Level:      int(level),
		ParitySize: make([]int64, level),
		Info:       make([]block.Info, blockMax),
		Disks:      make([]Disk, diskCount),
	}

	for i := range s.ParitySize {
		if err := binary.Read(r, binary.LittleEndian, &s.ParitySize[i]); err != nil {
			return nil, ErrTruncated
		}
	}

	for i := range s.Info {
		var raw uint64
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, ErrTruncated
		}
		s.Info[i] = block.Info(raw)
	}

	for j := range s.Disks {
		d, err := decodeDisk(r, blockMax)
		if err != nil {
			return nil, err
		}
		s.Disks[j] = d
	}

	return s, nil
}

func decodeDisk(r io.Reader, blockMax int64) (Disk, error) {
	var d Disk

	var present byte
	if err := binary.Read(r, binary.LittleEndian, &present); err != nil {
		return d, ErrTruncated
	}
	d.Present = present != 0

	var err error
	if d.Name, err = readString(r); err != nil {
		return d, ErrTruncated
	}
	if d.Dir, err = readString(r); err != nil {
		return d, ErrTruncated
	}

	var fileCount uint32
	if err := binary.Read(r, binary.LittleEndian, &fileCount); err != nil {
		return d, ErrTruncated
	}
	// A disk with no files keeps a nil table, as New leaves it.
	if fileCount > 0 {
		d.Files = make([]FileRef, fileCount)
	}
	for i := range d.Files {
		f := &d.Files[i]
		if f.Name, err = readString(r); err != nil {
			return d, ErrTruncated
		}
		if f.Dir, err = readString(r); err != nil {
			return d, ErrTruncated
		}
		for _, dst := range []interface{}{&f.Size, &f.MtimeSec, &f.MtimeNsec, &f.Ino} {
			if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
				return d, ErrTruncated
			}
		}
	}

	d.Blocks = make([]block.Block, blockMax)
	for i := range d.Blocks {
		b := &d.Blocks[i]
		var st byte
		var hashValid byte
		if err := binary.Read(r, binary.LittleEndian, &st); err != nil {
			return d, ErrTruncated
		}
		b.State = block.State(st)
		if err := binary.Read(r, binary.LittleEndian, &b.FileIdx); err != nil {
			return d, ErrTruncated
		}
		if err := binary.Read(r, binary.LittleEndian, &b.Offset); err != nil {
			return d, ErrTruncated
		}
		if err := binary.Read(r, binary.LittleEndian, &b.Hash); err != nil {
			return d, ErrTruncated
		}
		if err := binary.Read(r, binary.LittleEndian, &hashValid); err != nil {
			return d, ErrTruncated
		}
		b.HashValid = hashValid != 0
	}

	return d, nil
}
