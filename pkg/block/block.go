// Package block defines the per-disk, per-index block record and the
// lifecycle predicates the sync engine drives its decisions from.
package block

// State is the lifecycle state of a single block record.
type State uint8

// Block lifecycle states, see spec section 3.
const (
	// Empty means no data lives at this slot/index.
	Empty State = iota
	// Blk is a stable block: hash matches on-disk content and parity
	// includes it.
	Blk
	// Chg is a runtime-created block: file is present but the hash has
	// not yet been reconciled against content.
	Chg
	// New is a block assigned since the last sync; its hash is unset.
	New
	// Deleted was Blk, but the backing file is now gone. Parity still
	// encodes the old content until the next commit for this index.
	Deleted
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Blk:
		return "blk"
	case Chg:
		return "chg"
	case New:
		return "new"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Hash holds a fixed-width content digest. Both the current (highwayhash)
// and previous (sha256) hash functions produce 32-byte digests, so one
// array width serves both schemes during migration.
type Hash [32]byte

// Block is the tagged-union record for one data block at one disk slot.
// FileIdx is an index into the owning disk's file table rather than a
// pointer, so blocks and files can live in flat arenas (spec section 9,
// "Cyclic references").
type Block struct {
	State     State
	FileIdx   int32 // -1 when the block has no file reference
	Offset    int64 // byte offset of this block inside the referenced file
	Hash      Hash
	HashValid bool // Hash holds meaningful bytes, not just the zero value
}

// HasFile reports whether the block currently has a live file reference.
func (b Block) HasFile() bool {
	return b.State == Blk || b.State == Chg || b.State == New
}

// HasInvalidParity reports whether parity does not yet reflect this
// block's current content. bad additionally forces this true regardless
// of state, per spec's info.bad flag.
func (b Block) HasInvalidParity(bad bool) bool {
	return bad || b.State == Chg || b.State == New || b.State == Deleted
}

// HasSamePresence reports whether the block's presence is unchanged since
// the last sync (state did not flip to New or Deleted this run).
func (b Block) HasSamePresence() bool {
	return b.State == Blk || b.State == Chg
}

// HasUpdatedHash reports whether Hash is the authoritative current-content
// hash. Only Blk blocks carry that guarantee.
func (b Block) HasUpdatedHash() bool {
	return b.State == Blk
}

// HasAnyHash reports whether Hash holds some prior hash value worth
// comparing against, even if not authoritative.
func (b Block) HasAnyHash() bool {
	return b.State == Blk || (b.State == Chg && b.HashValid)
}
