package pstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashKeyDeterministic(t *testing.T) {
	a := hashKey([]byte("hello"))
	b := hashKey([]byte("hello"))
	require.Equal(t, a, b)

	c := hashKey([]byte("world"))
	require.NotEqual(t, a, c)
}

func TestHashDigestUsesLowBits(t *testing.T) {
	var d Digest
	for i := range d {
		d[i] = byte(i + 1)
	}

	got := hashDigest(d)

	// hashDigest is documented to read the low 64 bits (first 8 bytes,
	// little-endian) directly rather than hashing them again.
	var other Digest
	copy(other[:8], d[:8])
	// High bytes differ; low-bit-derived hash must be unaffected.
	for i := 8; i < 16; i++ {
		other[i] = 0xFF
	}
	require.Equal(t, got, hashDigest(other))
}

func TestIndexForLevel(t *testing.T) {
	// hash = 0b...000010_000001 picks bit 1 at level 0, bit 2 at level 1.
	hash := uint64(1) | uint64(2)<<fanOutBits
	require.Equal(t, byte(1), indexForLevel(hash, 0))
	require.Equal(t, byte(2), indexForLevel(hash, 1))
}
