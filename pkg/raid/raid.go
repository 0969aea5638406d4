// Package raid is the pure-function RAID codec the sync engine calls to
// fill parity buffers from data buffers, grounded on the erasure-coding
// calls in the teacher's cmd/erasure-healfile.go (ErasureDecodeDataAndParityBlocks).
// Unlike that teacher code, which drives reconstruction during healing,
// this package exposes the codec as the two primitives spec section 4.4
// names directly: Par (encode) and Recover (decode missing shards).
package raid

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// MaxLevel is the parity-level ceiling named in the glossary.
const MaxLevel = 6

// ErrLevelOutOfRange is returned when level exceeds MaxLevel or is
// non-positive.
var ErrLevelOutOfRange = errors.New("raid: parity level out of range")

func newCodec(ndata, level int) (reedsolomon.Encoder, error) {
	if level <= 0 || level > MaxLevel {
		return nil, fmt.Errorf("%w: %d", ErrLevelOutOfRange, level)
	}
	// With a single parity level the fast option selects a plain XOR
	// matrix; the default matrix would weight each data shard.
	return reedsolomon.New(ndata, level, reedsolomon.WithFastOneParityMatrix())
}

// Par fills buffers[ndata:ndata+level] from buffers[0:ndata]. buffers
// must have length ndata+level and every shard must have the same
// length (block_size), including blocks that are all-zero stand-ins for
// empty or non-file slots.
func Par(level, ndata int, buffers [][]byte) error {
	enc, err := newCodec(ndata, level)
	if err != nil {
		return err
	}
	return enc.Encode(buffers)
}

// Recover reconstructs the shards listed in missing from the surviving
// shards in buffers, which must otherwise hold valid data and parity.
// It is not exercised by the sync driver itself (reconstruction is a
// separate command per spec's Non-goals) but is required by testable
// property P1, which asserts that surviving shards plus parity recover
// any K missing data shards.
func Recover(level, ndata int, buffers [][]byte, missing []int) error {
	enc, err := newCodec(ndata, level)
	if err != nil {
		return err
	}
	shards := make([][]byte, ndata+level)
	copy(shards, buffers)
	for _, m := range missing {
		shards[m] = nil
	}
	if err := enc.Reconstruct(shards); err != nil {
		return err
	}
	copy(buffers, shards)
	return nil
}
