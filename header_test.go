package pstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := newHeader(1234567890)
	h.latestTrailerAddr = headerSize

	buf := make([]byte, headerSize)
	encodeHeader(buf, h)

	got, err := decodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h.magic, got.magic)
	require.Equal(t, h.version, got.version)
	require.Equal(t, h.uuid, got.uuid)
	require.Equal(t, h.latestTrailerAddr, got.latestTrailerAddr)
	require.Equal(t, h.creationTimeMs, got.creationTimeMs)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	h := newHeader(0)
	buf := make([]byte, headerSize)
	encodeHeader(buf, h)
	buf[0] = 'X'

	_, err := decodeHeader(buf)
	require.Error(t, err)
	require.True(t, Is(err, ErrBadMagic))
}

func TestHeaderRejectsUnsupportedVersion(t *testing.T) {
	h := newHeader(0)
	buf := make([]byte, headerSize)
	encodeHeader(buf, h)
	buf[8] = 99 // major version low byte

	_, err := decodeHeader(buf)
	require.Error(t, err)
	require.True(t, Is(err, ErrBadVersion))
}
