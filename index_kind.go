package pstore

import "encoding/binary"

// IndexKind enumerates the closed set of indices spec §3 defines. Each
// database revision carries exactly one root per kind (spec §6 trailer
// index_roots[6]).
type IndexKind int

const (
	KindName IndexKind = iota
	KindFragment
	KindCompilation
	KindDebugLineHeader
	KindWrite
	KindStrings

	numIndexKinds = int(KindStrings) + 1
)

func (k IndexKind) String() string {
	switch k {
	case KindName:
		return "name"
	case KindFragment:
		return "fragment"
	case KindCompilation:
		return "compilation"
	case KindDebugLineHeader:
		return "debug_line_header"
	case KindWrite:
		return "write"
	case KindStrings:
		return "strings"
	default:
		return "unknown"
	}
}

// isDigestKeyed reports whether a kind is keyed by a 128-bit content digest
// (fragment, compilation, debug_line_header) rather than a variable-length
// byte string (name, write, strings).
func (k IndexKind) isDigestKeyed() bool {
	switch k {
	case KindFragment, KindCompilation, KindDebugLineHeader:
		return true
	default:
		return false
	}
}

// valueLen returns the fixed encoded width of this kind's value: an 8-byte
// store address for the two intern-style indices (name, strings), or a
// 16-byte extent (address + size) for everything that stores byte ranges.
func (k IndexKind) valueLen() int {
	switch k {
	case KindName, KindStrings:
		return 8
	default:
		return 16
	}
}

// Extent is a (address, size) byte range within the store — the value type
// for every index except the two interning indices.
type Extent struct {
	Address uint64
	Size    uint64
}

func encodeExtent(e Extent) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], e.Address)
	binary.LittleEndian.PutUint64(buf[8:16], e.Size)
	return buf
}

func decodeExtent(buf []byte) Extent {
	return Extent{
		Address: binary.LittleEndian.Uint64(buf[0:8]),
		Size:    binary.LittleEndian.Uint64(buf[8:16]),
	}
}

func encodeAddress(a uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, a)
	return buf
}

func decodeAddress(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// Index is the typed façade over rawIndex spec §9 describes: "a capability
// set {find, insert, flush, iterate} with a concrete type per index kind
// rather than inheritance". V is Extent for the byte-range indices and
// uint64 for the two interning indices.
//
// An Index is always bound to one root slot — a Snapshot's fixed,
// already-committed root, or a Transaction's currently-accumulating one.
// InsertOrAssign only makes sense on the latter; calling it against a
// Snapshot-bound Index replaces that Snapshot's in-memory root with a dirty
// copy, which later lookups through the same Snapshot see but which is
// never flushed or committed.
type Index[V any] struct {
	raw      *rawIndex
	rootSlot *childRef
	version  uint64 // the owning transaction's revision-in-progress; unused for a Snapshot-bound Index
	encode   func(V) []byte
	decode   func([]byte) V
}

func newExtentIndex(kind IndexKind, as *addressSpace, pool *nodePool, rootSlot *childRef, version uint64) *Index[Extent] {
	return &Index[Extent]{
		raw:      newRawIndex(kind, as, pool),
		rootSlot: rootSlot,
		version:  version,
		encode:   encodeExtent,
		decode:   decodeExtent,
	}
}

func newAddressIndex(kind IndexKind, as *addressSpace, pool *nodePool, rootSlot *childRef, version uint64) *Index[uint64] {
	return &Index[uint64]{
		raw:      newRawIndex(kind, as, pool),
		rootSlot: rootSlot,
		version:  version,
		encode:   encodeAddress,
		decode:   decodeAddress,
	}
}

// Find looks up key in the index's bound root (spec §4.F).
func (ix *Index[V]) Find(key []byte) (V, bool, error) {
	var zero V
	raw, ok, err := ix.raw.find(*ix.rootSlot, key)
	if err != nil || !ok {
		return zero, false, err
	}
	return ix.decode(raw), true, nil
}

// InsertOrAssign inserts key/value, or overwrites the existing value if key
// is already present (spec §3's insert_or_assign, grounded on
// original_source/examples/write_basic/write_basic.cpp). The bound root
// slot is updated in place with the new, not-yet-flushed root, stamped with
// the owning transaction's in-progress revision.
func (ix *Index[V]) InsertOrAssign(key []byte, value V) error {
	newRoot, err := ix.raw.put(*ix.rootSlot, key, ix.encode(value), ix.version)
	if err != nil {
		return err
	}
	*ix.rootSlot = newRoot
	return nil
}

// IndexEntry is one decoded (key, value) pair returned by Iterate.
type IndexEntry[V any] struct {
	Key   []byte
	Value V
}

// Iterate returns every (key, value) pair in the index's bound root, in
// hash order (spec §4.F, §8).
func (ix *Index[V]) Iterate() ([]IndexEntry[V], error) {
	raw, err := ix.raw.iterate(*ix.rootSlot)
	if err != nil {
		return nil, err
	}

	out := make([]IndexEntry[V], len(raw))
	for i, e := range raw {
		out[i] = IndexEntry[V]{Key: e.Key, Value: ix.decode(e.Value)}
	}
	return out, nil
}

// flush performs the post-order commit walk, allocating store addresses for
// every dirty node reachable from the bound root, and leaves the bound root
// pointing at the flushed (store-address) form.
func (ix *Index[V]) flush(alloc *allocator) error {
	flushed, err := ix.raw.flush(*ix.rootSlot, alloc)
	if err != nil {
		return err
	}
	*ix.rootSlot = flushed
	return nil
}
