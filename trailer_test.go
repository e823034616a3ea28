package pstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTrailer(revision, prev uint64) *trailer {
	t := &trailer{revision: revision, prevTrailer: prev, fileSize: 4096, timeMs: 42}
	for i := range t.indexRoots {
		t.indexRoots[i] = uint64(i) * 1000
	}
	return t
}

func TestTrailerRoundTrip(t *testing.T) {
	tr := sampleTrailer(5, 1024)
	buf := make([]byte, trailerSize)
	encodeTrailer(buf, tr)

	got, err := decodeTrailer(buf)
	require.NoError(t, err)
	require.Equal(t, tr.revision, got.revision)
	require.Equal(t, tr.prevTrailer, got.prevTrailer)
	require.Equal(t, tr.fileSize, got.fileSize)
	require.Equal(t, tr.timeMs, got.timeMs)
	require.Equal(t, tr.indexRoots, got.indexRoots)
}

func TestTrailerRejectsCorruptedChecksum(t *testing.T) {
	tr := sampleTrailer(1, 0)
	buf := make([]byte, trailerSize)
	encodeTrailer(buf, tr)

	buf[16] ^= 0xFF // corrupt prevTrailer after the checksum was computed over it

	_, err := decodeTrailer(buf)
	require.Error(t, err)
	require.True(t, Is(err, ErrBadChecksum))
}

func TestTrailerRejectsBadMagic(t *testing.T) {
	tr := sampleTrailer(1, 0)
	buf := make([]byte, trailerSize)
	encodeTrailer(buf, tr)

	buf[trailerSize-8] = 'X'

	_, err := decodeTrailer(buf)
	require.Error(t, err)
	require.True(t, Is(err, ErrBadMagic))
}

func TestFindTrailerByRevisionWalksChain(t *testing.T) {
	chain := map[uint64]*trailer{
		100: sampleTrailer(0, 0),
		200: sampleTrailer(1, 100),
		300: sampleTrailer(2, 200),
	}

	reader := func(addr uint64) (*trailer, error) {
		tr, ok := chain[addr]
		if !ok {
			return nil, wrap(ErrUnknownRevision)
		}
		return tr, nil
	}

	got, addr, err := findTrailerByRevision(reader, 300, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(200), addr)
	require.Equal(t, uint64(1), got.revision)

	_, _, err = findTrailerByRevision(reader, 300, 7)
	require.Error(t, err)
	require.True(t, Is(err, ErrUnknownRevision))
}
