// Package hash provides the two content hashers the sync engine
// migrates between: a fast, keyed current scheme (highwayhash) and an
// unkeyed previous scheme (sha256) kept alive only to verify blocks
// still pending rehash.
package hash

import (
	"github.com/minio/highwayhash"
	sha256simd "github.com/minio/sha256-simd"

	"github.com/ironpeak/raidsync/pkg/block"
)

// Hasher computes the fixed-width content digest of a block buffer.
type Hasher interface {
	Sum(data []byte) block.Hash
}

// currentHasher wraps highwayhash, a keyed hash, as the active scheme.
type currentHasher struct {
	key []byte
}

// NewCurrent builds the active (current) block hasher. key must be 32
// bytes; callers typically derive it once from the array's configuration
// and reuse it for the life of the process.
func NewCurrent(key [32]byte) Hasher {
	k := make([]byte, len(key))
	copy(k, key[:])
	return &currentHasher{key: k}
}

func (h *currentHasher) Sum(data []byte) block.Hash {
	hh, err := highwayhash.New(h.key)
	if err != nil {
		// Only fails for a malformed key, which NewCurrent guarantees
		// against by construction.
		panic(err)
	}
	hh.Write(data)
	var out block.Hash
	copy(out[:], hh.Sum(nil))
	return out
}

// previousHasher wraps sha256-simd, the legacy scheme blocks are migrated
// away from during a rehash.
type previousHasher struct{}

// NewPrevious builds the legacy (previous) block hasher.
func NewPrevious() Hasher {
	return previousHasher{}
}

func (previousHasher) Sum(data []byte) block.Hash {
	return block.Hash(sha256simd.Sum256(data))
}
