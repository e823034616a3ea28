package pstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeChildPointer(t *testing.T) {
	cases := []struct {
		addr   uint64
		isLeaf bool
	}{
		{0, false},
		{0, true},
		{12345, false},
		{12345, true},
		{1 << 62, true},
	}

	for _, c := range cases {
		p := encodeChildPointer(c.addr, c.isLeaf)
		addr, isLeaf := decodeChildPointer(p)
		require.Equal(t, c.addr, addr)
		require.Equal(t, c.isLeaf, isLeaf)
	}
}

func TestLeafNodeRoundTrip(t *testing.T) {
	n := &leafNode{
		entries: []kvEntry{
			{key: []byte("short"), value: encodeExtent(Extent{Address: 10, Size: 20})},
			{key: []byte(""), value: encodeExtent(Extent{Address: 0, Size: 0})},
			{key: []byte("a much longer key than the others"), value: encodeExtent(Extent{Address: 999, Size: 1})},
		},
	}

	size := serializedSizeLeaf(n)
	buf := make([]byte, size)
	require.NoError(t, encodeLeaf(buf, n))

	got, err := decodeLeaf(buf, 16)
	require.NoError(t, err)
	require.Len(t, got.entries, len(n.entries))
	for i, e := range n.entries {
		require.Equal(t, e.key, got.entries[i].key)
		require.Equal(t, e.value, got.entries[i].value)
	}
}

func TestLeafNodeRejectsOversizedEntryCount(t *testing.T) {
	n := &leafNode{entries: make([]kvEntry, 256)}
	for i := range n.entries {
		n.entries[i] = kvEntry{key: []byte{byte(i)}, value: make([]byte, 8)}
	}

	buf := make([]byte, serializedSizeLeaf(n))
	err := encodeLeaf(buf, n)
	require.Error(t, err)
}

func TestInternalNodeRoundTrip(t *testing.T) {
	n := &internalNode{
		bitmap: setBit(setBit(setBit(0, 0), 5), 63),
		children: []childRef{
			storedRef(128, true),
			storedRef(256, false),
			storedRef(1<<40, true),
		},
	}

	size := serializedSizeInternal(n)
	buf := make([]byte, size)
	require.NoError(t, encodeInternal(buf, n))

	got, err := decodeInternal(buf)
	require.NoError(t, err)
	require.Equal(t, n.bitmap, got.bitmap)
	require.Equal(t, len(n.children), len(got.children))
	for i, c := range n.children {
		require.Equal(t, c.addr, got.children[i].addr)
		require.Equal(t, c.isLeaf, got.children[i].isLeaf)
	}
}

func TestInternalNodeRejectsDirtyChild(t *testing.T) {
	n := &internalNode{
		bitmap:   setBit(0, 0),
		children: []childRef{leafRef(&leafNode{})},
	}

	buf := make([]byte, serializedSizeInternal(n))
	err := encodeInternal(buf, n)
	require.Error(t, err)
}

func TestDecodeInternalRejectsBadTag(t *testing.T) {
	buf := make([]byte, 9)
	buf[0] = tagLeaf
	_, err := decodeInternal(buf)
	require.Error(t, err)
	require.True(t, Is(err, ErrCorruptNode))
}

func TestDecodeLeafRejectsBadTag(t *testing.T) {
	buf := make([]byte, 2)
	buf[0] = tagInternal
	_, err := decodeLeaf(buf, 8)
	require.Error(t, err)
	require.True(t, Is(err, ErrCorruptNode))
}
