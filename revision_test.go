package pstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRevisionHead(t *testing.T) {
	for _, s := range []string{"head", "HEAD", "  Head  ", "HeAd"} {
		rev, err := ParseRevision(s)
		require.NoError(t, err)
		require.True(t, rev.IsHead())
	}
}

func TestParseRevisionNumber(t *testing.T) {
	rev, err := ParseRevision("42")
	require.NoError(t, err)
	require.False(t, rev.IsHead())
	require.Equal(t, uint64(42), rev.Number())
}

func TestParseRevisionInvalid(t *testing.T) {
	for _, s := range []string{"", "abc", "-1", "3.14"} {
		_, err := ParseRevision(s)
		require.Error(t, err)
		require.True(t, Is(err, ErrInvalidRevisionString))
	}
}

func TestUnknownRevisionIsRejected(t *testing.T) {
	path := t.TempDir() + "/repo.db"

	db, err := Open(path, Writable, WithRegionSize(64<<10))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Revision(RevisionNumber(99))
	require.Error(t, err)
	require.True(t, Is(err, ErrUnknownRevision))
}
