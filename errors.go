package pstore

import "github.com/pkg/errors"

// Error taxonomy (spec §7). Each sentinel is matched with errors.Is; the
// errors the store detects itself wrap one of these with errors.WithStack
// so the originating call site is recoverable from logs. OS-level I/O
// errors are returned unwrapped, and node-encoding failures are plain
// errors that match no sentinel.
var (
	// Capacity
	ErrOutOfSpace        = errors.New("pstore: out of space")
	ErrAlignmentOverflow = errors.New("pstore: alignment overflow")

	// Integrity
	ErrBadMagic        = errors.New("pstore: bad magic")
	ErrBadVersion      = errors.New("pstore: unsupported format version")
	ErrBadChecksum     = errors.New("pstore: trailer checksum mismatch")
	ErrAddressOutOfRange = errors.New("pstore: address out of range")
	ErrCorruptNode     = errors.New("pstore: corrupt hamt node")

	// Concurrency
	ErrAlreadyLocked = errors.New("pstore: database already locked by another writer")
	ErrLockLost      = errors.New("pstore: writer lock lost")

	// Lookup
	ErrUnknownRevision = errors.New("pstore: unknown revision")
	ErrKeyNotFound     = errors.New("pstore: key not found")

	// Argument
	ErrInvalidRevisionString = errors.New("pstore: invalid revision string")
	ErrInvalidKey            = errors.New("pstore: invalid key")

	// Engine state
	ErrTxNotOpen     = errors.New("pstore: transaction is not open")
	ErrTxAlreadyOpen = errors.New("pstore: a transaction is already open on this handle")
	ErrTxReadOnly    = errors.New("pstore: write attempted on a read-only transaction")
	ErrDBUnusable    = errors.New("pstore: database handle is unusable after an integrity failure")
	ErrDBClosed      = errors.New("pstore: database is closed")
)

// wrap attaches a stack trace to a sentinel with errors.WithStack. Every
// call adds a new stack; callers only ever pass it bare sentinels.
func wrap(sentinel error) error {
	return errors.WithStack(sentinel)
}

// Is reports whether err is, or wraps, target. Exposed so callers don't need
// to import pkg/errors themselves to match pstore's sentinels.
func Is(err, target error) bool { return errors.Is(err, target) }

// markIntegrityFailure marks the handle unusable, after which Begin,
// Revision and Snapshot.Read fail fast with ErrDBUnusable. Commit calls it
// when flushing an index fails; integrity errors found while decoding a
// header, trailer or node are returned to the caller without marking the
// handle.
func (db *DB) markIntegrityFailure(cause error) error {
	db.unusable.Store(true)
	db.log.Error().Err(cause).Msg("integrity failure, marking database handle unusable")
	return cause
}

func (db *DB) checkUsable() error {
	if db.unusable.Load() {
		return wrap(ErrDBUnusable)
	}
	return nil
}
