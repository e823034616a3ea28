package pstore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOptions() []Option {
	return []Option{WithRegionSize(64 << 10)}
}

func TestOpenGenesisRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer db.Close()

	head, err := db.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(0), head.Revision())
}

func TestWriteThenReadMirrorsWriteBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)

	value := []byte("hello, pstore")
	buf, addr, err := tx.AllocRW(uint64(len(value)), 1)
	require.NoError(t, err)
	copy(buf, value)

	extent := Extent{Address: addr, Size: uint64(len(value))}
	require.NoError(t, tx.Write().InsertOrAssign([]byte("greeting"), extent))
	require.NoError(t, tx.Commit())

	head, err := db.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head.Revision())

	got, ok, err := head.Write().Find([]byte("greeting"))
	require.NoError(t, err)
	require.True(t, ok)

	bytes, err := head.Read(got)
	require.NoError(t, err)
	require.Equal(t, value, bytes)
}

func TestRevisionIsolationAndStructuralSharing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer db.Close()

	// Revision 1: write "a" and "b".
	tx, err := db.Begin()
	require.NoError(t, err)
	for _, k := range []string{"a", "b"} {
		buf, addr, err := tx.AllocRW(1, 1)
		require.NoError(t, err)
		buf[0] = k[0]
		require.NoError(t, tx.Write().InsertOrAssign([]byte(k), Extent{Address: addr, Size: 1}))
	}
	require.NoError(t, tx.Commit())

	rev1, err := db.Revision(RevisionNumber(1))
	require.NoError(t, err)
	extentA1, ok, err := rev1.Write().Find([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	// Revision 2: overwrite "a", leave "b" untouched.
	tx2, err := db.Begin()
	require.NoError(t, err)
	buf, addr, err := tx2.AllocRW(1, 1)
	require.NoError(t, err)
	buf[0] = 'A'
	require.NoError(t, tx2.Write().InsertOrAssign([]byte("a"), Extent{Address: addr, Size: 1}))
	require.NoError(t, tx2.Commit())

	// rev1 must still report its own, pre-overwrite value for "a" — readers
	// holding an older Snapshot never observe a later commit.
	extentA1Again, ok, err := rev1.Write().Find([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, extentA1, extentA1Again)

	head, err := db.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(2), head.Revision())

	extentA2, ok, err := head.Write().Find([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, extentA1.Address, extentA2.Address)

	// "b" was never touched in revision 2: structural sharing means its
	// extent address is identical across both revisions.
	extentB1, ok, err := rev1.Write().Find([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	extentB2, ok, err := head.Write().Find([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, extentB1, extentB2)
}

func TestRollbackLeavesHeadUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer db.Close()

	headBefore, err := db.Head()
	require.NoError(t, err)
	sizeBefore := db.as.fileSizeNow()

	tx, err := db.Begin()
	require.NoError(t, err)
	buf, addr, err := tx.AllocRW(4, 1)
	require.NoError(t, err)
	copy(buf, "oops")
	require.NoError(t, tx.Write().InsertOrAssign([]byte("k"), Extent{Address: addr, Size: 4}))
	require.NoError(t, tx.Rollback())

	headAfter, err := db.Head()
	require.NoError(t, err)
	require.Equal(t, headBefore.Revision(), headAfter.Revision())
	require.Equal(t, sizeBefore, db.hwm)

	_, ok, err := headAfter.Write().Find([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	// The handle must accept a fresh Begin after a rollback.
	tx2, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())
}

func TestSecondBeginFailsWhileTransactionOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = db.Begin()
	require.Error(t, err)
	require.True(t, Is(err, ErrTxAlreadyOpen))
}

func TestLockLossAbortsInFlightTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)

	// Simulate a heartbeat failure occurring after Begin already succeeded:
	// both AllocRW and Commit must independently notice the lock is gone
	// rather than letting an in-flight transaction complete.
	db.lockH.lost.Store(true)

	_, _, err = tx.AllocRW(8, 1)
	require.Error(t, err)
	require.True(t, Is(err, ErrLockLost))

	err = tx.Commit()
	require.Error(t, err)
	require.True(t, Is(err, ErrLockLost))
}

func TestReadOnlyHandleCannotBegin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reader, err := Open(path, ReadOnly, testOptions()...)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Begin()
	require.Error(t, err)
	require.True(t, Is(err, ErrTxReadOnly))
}

func TestReadOnlyHandlesSeeCommittedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	writer, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)
	defer writer.Close()

	tx, err := writer.Begin()
	require.NoError(t, err)
	buf, addr, err := tx.AllocRW(5, 1)
	require.NoError(t, err)
	copy(buf, "value")
	require.NoError(t, tx.Write().InsertOrAssign([]byte("shared"), Extent{Address: addr, Size: 5}))
	require.NoError(t, tx.Commit())

	for i := 0; i < 3; i++ {
		reader, err := Open(path, ReadOnly, testOptions()...)
		require.NoError(t, err)

		head, err := reader.Head()
		require.NoError(t, err)
		extent, ok, err := head.Write().Find([]byte("shared"))
		require.NoError(t, err)
		require.True(t, ok)

		bytes, err := head.Read(extent)
		require.NoError(t, err)
		require.Equal(t, "value", string(bytes))

		require.NoError(t, reader.Close())
	}
}

func TestFragmentIndexHashCollisionAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)

	// 32 distinct 16-byte digests sharing the same low 64 bits (the HAMT
	// hash for digest-keyed indices), forcing the fragment index's trie to
	// push every one of them down to the maximum trie depth before they
	// land together in one overflowing leaf.
	const n = 32
	tx, err := db.Begin()
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		digest := make([]byte, 16)
		for b := 0; b < 8; b++ {
			digest[b] = byte(0xAB)
		}
		digest[8] = byte(i)

		buf, addr, err := tx.AllocRW(1, 1)
		require.NoError(t, err)
		buf[0] = byte(i)
		require.NoError(t, tx.Fragment().InsertOrAssign(digest, Extent{Address: addr, Size: 1}))
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, db.Close())

	// Reopen to force every lookup through the serialized, on-disk form.
	db2, err := Open(path, ReadOnly, testOptions()...)
	require.NoError(t, err)
	defer db2.Close()

	head, err := db2.Head()
	require.NoError(t, err)

	entries, err := head.Fragment().Iterate()
	require.NoError(t, err)
	require.Len(t, entries, n)

	for i := 0; i < n; i++ {
		digest := make([]byte, 16)
		for b := 0; b < 8; b++ {
			digest[b] = byte(0xAB)
		}
		digest[8] = byte(i)

		_, ok, err := head.Fragment().Find(digest)
		require.NoError(t, err)
		require.True(t, ok, "digest %d not found after restart", i)
	}
}

func TestManyKeysRoundTripAcrossCommitAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")

	db, err := Open(path, Writable, testOptions()...)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)

	const n = 200
	want := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("name-%04d", i)
		v := fmt.Sprintf("value-%04d", i)
		want[k] = v

		buf, addr, err := tx.AllocRW(uint64(len(v)), 1)
		require.NoError(t, err)
		copy(buf, v)
		require.NoError(t, tx.Write().InsertOrAssign([]byte(k), Extent{Address: addr, Size: uint64(len(v))}))
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, db.Close())

	db2, err := Open(path, ReadOnly, testOptions()...)
	require.NoError(t, err)
	defer db2.Close()

	head, err := db2.Head()
	require.NoError(t, err)

	for k, v := range want {
		extent, ok, err := head.Write().Find([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)

		bytes, err := head.Read(extent)
		require.NoError(t, err)
		require.Equal(t, v, string(bytes))
	}
}
