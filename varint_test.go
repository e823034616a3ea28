package pstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 63, 64, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}

	for _, v := range cases {
		buf := putUvarint(nil, v)
		got, n, err := uvarint(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestUvarintTruncatedBuffer(t *testing.T) {
	// A continuation byte with nothing after it never terminates.
	_, _, err := uvarint([]byte{0x80})
	require.Error(t, err)
	require.True(t, Is(err, ErrCorruptNode))
}

func TestUvarintConsumesOnlyItsOwnBytes(t *testing.T) {
	buf := putUvarint(nil, 128)
	buf = append(buf, 0xAA, 0xBB)

	_, n, err := uvarint(buf)
	require.NoError(t, err)
	require.Less(t, n, len(buf))
}
