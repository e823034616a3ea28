package pstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Digest is a 128-bit content digest, the key type for the fragment,
// compilation, and debug_line_header indices (spec §3).
type Digest [16]byte

// fanOutBits / fanOut / maxDepth implement the HAMT shape fixed by spec
// §4.F: 64-way fan-out (6 bits of hash per level), 11 levels deep before the
// 64-bit hash space is exhausted and any further collisions are resolved by
// a linear-probe leaf.
const (
	fanOutBits = 6
	fanOut     = 1 << fanOutBits
	maxDepth   = 11
)

// hashKey hashes a variable-length key (used by the name/strings/write
// indices) to the 64-bit value the trie indexes on. xxhash64 is the
// documented choice resolving spec.md's Open Question on hash function.
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// hashDigest derives the trie's 64-bit hash from a caller-supplied 128-bit
// digest (used by the fragment/compilation/debug_line_header indices) by
// taking its low 64 bits directly — the caller already guaranteed a
// uniform, collision-resistant digest, so re-hashing it would add cost
// without improving distribution.
func hashDigest(d Digest) uint64 {
	return binary.LittleEndian.Uint64(d[:8])
}

// indexForLevel extracts the fanOutBits-wide slice of hash used to select a
// child at the given trie depth. Once level reaches maxDepth the 64-bit hash
// is exhausted; callers must fall back to a linear-probe leaf at that point.
func indexForLevel(hash uint64, level int) byte {
	shift := uint(level * fanOutBits)
	return byte((hash >> shift) & (fanOut - 1))
}
