package pstore

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// On-disk node tags (spec §6).
const (
	tagInternal byte = 0
	tagLeaf     byte = 1
)

// encodeChildPointer packs a child's store address and leaf/internal tag into
// a single u64: bit 0 is the tag (set ⇒ addr>>1 is a leaf address), the
// remaining 63 bits are the address (spec §6, "inline leaf" encoding).
func encodeChildPointer(addr uint64, isLeaf bool) uint64 {
	p := addr << 1
	if isLeaf {
		p |= 1
	}
	return p
}

func decodeChildPointer(p uint64) (addr uint64, isLeaf bool) {
	return p >> 1, p&1 != 0
}

// serializedSizeInternal returns the exact byte length of an internal node's
// on-disk encoding: a tag byte, the bitmap, and one pointer per set bit.
func serializedSizeInternal(n *internalNode) uint64 {
	return 1 + 8 + uint64(popcount(n.bitmap))*8
}

// serializedSizeLeaf returns the exact byte length of a leaf node's encoding.
func serializedSizeLeaf(n *leafNode) uint64 {
	size := uint64(1 + 1) // tag + count
	for _, e := range n.entries {
		size += uint64(maxVarintLenFor(len(e.key))) + uint64(len(e.key)) + uint64(len(e.value))
	}
	return size
}

func maxVarintLenFor(v int) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// encodeInternal serializes n into buf (which must be exactly
// serializedSizeInternal(n) bytes). Every child must already carry a store
// address — callers flush children before their parent (spec §4.C post-order
// commit).
func encodeInternal(buf []byte, n *internalNode) error {
	buf[0] = tagInternal
	binary.LittleEndian.PutUint64(buf[1:9], n.bitmap)

	off := 9
	for _, child := range n.children {
		if child.dirty() {
			return errors.New("pstore: cannot serialize internal node with un-flushed child")
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], encodeChildPointer(child.addr, child.isLeaf))
		off += 8
	}
	return nil
}

// encodeLeaf serializes n into buf (which must be exactly
// serializedSizeLeaf(n) bytes).
func encodeLeaf(buf []byte, n *leafNode) error {
	if len(n.entries) > 255 {
		return errors.New("pstore: leaf node exceeds 255 entries")
	}

	buf[0] = tagLeaf
	buf[1] = byte(len(n.entries))

	off := 2
	for _, e := range n.entries {
		tmp := make([]byte, 0, maxVarintLen)
		tmp = putUvarint(tmp, uint64(len(e.key)))
		off += copy(buf[off:], tmp)
		off += copy(buf[off:], e.key)
		off += copy(buf[off:], e.value)
	}
	return nil
}

// decodeInternal parses a tagInternal-prefixed node out of buf.
func decodeInternal(buf []byte) (*internalNode, error) {
	if len(buf) < 9 || buf[0] != tagInternal {
		return nil, wrap(ErrCorruptNode)
	}

	bitmap := binary.LittleEndian.Uint64(buf[1:9])
	count := popcount(bitmap)

	need := 9 + count*8
	if len(buf) < need {
		return nil, wrap(ErrCorruptNode)
	}

	children := make([]childRef, count)
	off := 9
	for i := 0; i < count; i++ {
		ptr := binary.LittleEndian.Uint64(buf[off : off+8])
		addr, isLeaf := decodeChildPointer(ptr)
		children[i] = storedRef(addr, isLeaf)
		off += 8
	}

	return &internalNode{bitmap: bitmap, children: children}, nil
}

// decodeLeaf parses a tagLeaf-prefixed node out of buf. valueLen gives the
// fixed encoded length of one value for the owning index's value kind (spec
// §6 distinguishes intern-style 8-byte address values from 16-byte extent
// values; both are fixed width, so no length prefix is needed for them).
func decodeLeaf(buf []byte, valueLen int) (*leafNode, error) {
	if len(buf) < 2 || buf[0] != tagLeaf {
		return nil, wrap(ErrCorruptNode)
	}

	count := int(buf[1])
	entries := make([]kvEntry, count)

	off := 2
	for i := 0; i < count; i++ {
		keyLen, n, err := uvarint(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n

		if off+int(keyLen)+valueLen > len(buf) {
			return nil, wrap(ErrCorruptNode)
		}

		key := make([]byte, keyLen)
		copy(key, buf[off:off+int(keyLen)])
		off += int(keyLen)

		value := make([]byte, valueLen)
		copy(value, buf[off:off+valueLen])
		off += valueLen

		entries[i] = kvEntry{key: key, value: value}
	}

	return &leafNode{entries: entries}, nil
}
