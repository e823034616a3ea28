package pstore

import (
	"bytes"
	"math/bits"
	"sync"
)

// kvEntry is one (key, value) pair stored in a leaf node. value is the
// already-encoded representation for the owning index's value kind (an
// address for the intern indices, a serialized extent for the others).
type kvEntry struct {
	key   []byte
	value []byte
}

// leafNode is spec §3's "Linear/leaf node": normally a single entry, growing
// to more than one only when distinct keys hash identically all the way to
// maxDepth (spec §8 collision scenario).
type leafNode struct {
	version     uint64
	startOffset uint64 // 0 until flushed to the store
	entries     []kvEntry
}

// internalNode is spec §3's "Internal node": a 64-bit child bitmap plus a
// packed array of child pointers, one per set bit.
type internalNode struct {
	version     uint64
	startOffset uint64 // 0 until flushed to the store
	bitmap      uint64
	children    []childRef
}

// childRef is the tagged variant described in spec §9's Design Notes: a
// child is either a store address of an already-flushed node (the common
// case for structural sharing with prior revisions) or, inside an
// in-progress transaction, a handle to a dirty in-memory node that hasn't
// been allocated a store address yet. Exactly one of the two forms is
// populated at a time.
type childRef struct {
	addr   uint64
	isLeaf bool

	dirtyLeaf     *leafNode
	dirtyInternal *internalNode
}

func (r childRef) dirty() bool { return r.dirtyLeaf != nil || r.dirtyInternal != nil }

func leafRef(n *leafNode) childRef         { return childRef{isLeaf: true, dirtyLeaf: n} }
func internalRef(n *internalNode) childRef { return childRef{isLeaf: false, dirtyInternal: n} }
func storedRef(addr uint64, isLeaf bool) childRef {
	return childRef{addr: addr, isLeaf: isLeaf}
}

func popcount(bitmap uint64) int { return bits.OnesCount64(bitmap) }

func isBitSet(bitmap uint64, idx byte) bool {
	return bitmap&(uint64(1)<<idx) != 0
}

func setBit(bitmap uint64, idx byte) uint64 {
	return bitmap | (uint64(1) << idx)
}

// position returns the index into the packed children array for the given
// bitmap slice — the count of set bits below idx (spec §4.F).
func position(bitmap uint64, idx byte) int {
	if idx == 0 {
		return 0
	}
	mask := (uint64(1) << idx) - 1
	return popcount(bitmap & mask)
}

func insertChildAt(children []childRef, pos int, ref childRef) []childRef {
	out := make([]childRef, len(children)+1)
	copy(out[:pos], children[:pos])
	out[pos] = ref
	copy(out[pos+1:], children[pos:])
	return out
}

func findEntry(entries []kvEntry, key []byte) int {
	for i, e := range entries {
		if bytes.Equal(e.key, key) {
			return i
		}
	}
	return -1
}

func copyEntries(entries []kvEntry) []kvEntry {
	out := make([]kvEntry, len(entries))
	copy(out, entries)
	return out
}

func copyChildren(children []childRef) []childRef {
	out := make([]childRef, len(children))
	copy(out, children)
	return out
}

// nodePool recycles internalNode/leafNode allocations across a transaction's
// lifetime, following the teacher's NodePool: a transaction that touches a
// deep path produces many short-lived copies, and a sync.Pool keeps that off
// the GC's back.
type nodePool struct {
	internals sync.Pool
	leaves    sync.Pool
}

func newNodePool() *nodePool {
	np := &nodePool{}
	np.internals.New = func() any { return &internalNode{} }
	np.leaves.New = func() any { return &leafNode{} }
	return np
}

func (p *nodePool) getInternal() *internalNode {
	n := p.internals.Get().(*internalNode)
	n.version, n.startOffset, n.bitmap, n.children = 0, 0, 0, nil
	return n
}

func (p *nodePool) getLeaf() *leafNode {
	n := p.leaves.Get().(*leafNode)
	n.version, n.startOffset, n.entries = 0, 0, nil
	return n
}

func (p *nodePool) putInternal(n *internalNode) { p.internals.Put(n) }
func (p *nodePool) putLeaf(n *leafNode)         { p.leaves.Put(n) }
