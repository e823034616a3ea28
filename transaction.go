package pstore

import (
	"encoding/binary"
	"time"
)

type txState int

const (
	txIdle txState = iota
	txOpenState
	txCommitted
	txAborted
)

// Transaction is component E (spec §4.E): the single in-flight writable
// view of a database. Only one exists per DB handle at a time. It
// accumulates copy-on-write index modifications in memory; nothing is
// visible to readers until Commit durably publishes a new trailer.
type Transaction struct {
	db    *DB
	state txState

	alloc   *allocator
	txStart uint64

	version uint64
	roots   [numIndexKinds]childRef
}

// Begin opens a transaction on db, which must have been opened Writable.
// Moves the database to "one transaction in flight"; a second concurrent
// Begin fails until the first Commits or Rolls back (spec §4.E).
func (db *DB) Begin() (*Transaction, error) {
	if err := db.checkUsable(); err != nil {
		return nil, err
	}
	if db.mode != Writable {
		return nil, wrap(ErrTxReadOnly)
	}
	if err := db.checkLockHeld(); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txOpen {
		return nil, wrap(ErrTxAlreadyOpen)
	}
	db.txOpen = true

	tx := &Transaction{
		db:      db,
		state:   txOpenState,
		alloc:   newAllocator(db.as, db.hwm),
		txStart: db.hwm,
		version: db.latestTrail.revision + 1,
	}
	for k := 0; k < numIndexKinds; k++ {
		tx.roots[k] = storedRef(db.latestTrail.indexRoots[k], false)
	}

	return tx, nil
}

func (tx *Transaction) requireOpen() error {
	if tx.state != txOpenState {
		return wrap(ErrTxNotOpen)
	}
	return nil
}

// checkLockHeld reports ErrLockLost once the writer lock's heartbeat has
// failed, per spec §5/§7: "lock loss during a heartbeat causes all
// subsequent writes to fail with lock_lost". Begin, AllocRW, and Commit each
// check this independently — a transaction already in flight when the
// heartbeat fails must not be allowed to complete, since that would let two
// writers believe they each hold the lock (spec §3.7).
func (db *DB) checkLockHeld() error {
	if db.lockH != nil && !db.lockH.okToWrite() {
		return wrap(ErrLockLost)
	}
	return nil
}

// AllocRW reserves size bytes aligned to align and returns a writable view
// plus its store address (spec §4.D's alloc_rw, exposed through the
// transaction per spec §6's collaborator interface).
func (tx *Transaction) AllocRW(size, align uint64) (MMap, uint64, error) {
	if err := tx.requireOpen(); err != nil {
		return nil, 0, err
	}
	if err := tx.db.checkLockHeld(); err != nil {
		return nil, 0, err
	}
	return tx.alloc.allocRW(size, align)
}

// Names returns a read/write handle onto the name index for this transaction.
func (tx *Transaction) Names() *Index[uint64] {
	return newAddressIndex(KindName, tx.db.as, tx.db.pool, &tx.roots[KindName], tx.version)
}

// Strings returns a read/write handle onto the strings index for this transaction.
func (tx *Transaction) Strings() *Index[uint64] {
	return newAddressIndex(KindStrings, tx.db.as, tx.db.pool, &tx.roots[KindStrings], tx.version)
}

// Fragment returns a read/write handle onto the fragment index for this transaction.
func (tx *Transaction) Fragment() *Index[Extent] {
	return newExtentIndex(KindFragment, tx.db.as, tx.db.pool, &tx.roots[KindFragment], tx.version)
}

// Compilation returns a read/write handle onto the compilation index for this transaction.
func (tx *Transaction) Compilation() *Index[Extent] {
	return newExtentIndex(KindCompilation, tx.db.as, tx.db.pool, &tx.roots[KindCompilation], tx.version)
}

// DebugLineHeader returns a read/write handle onto the debug_line_header index for this transaction.
func (tx *Transaction) DebugLineHeader() *Index[Extent] {
	return newExtentIndex(KindDebugLineHeader, tx.db.as, tx.db.pool, &tx.roots[KindDebugLineHeader], tx.version)
}

// Write returns a read/write handle onto the write index for this transaction.
func (tx *Transaction) Write() *Index[Extent] {
	return newExtentIndex(KindWrite, tx.db.as, tx.db.pool, &tx.roots[KindWrite], tx.version)
}

// indexHandles returns every index bound to this transaction's roots, in
// trailer index_roots order, for the commit-time flush walk.
func (tx *Transaction) indexHandles() [numIndexKinds]interface{ flush(*allocator) error } {
	return [numIndexKinds]interface{ flush(*allocator) error }{
		tx.Names(), tx.Fragment(), tx.Compilation(), tx.DebugLineHeader(), tx.Write(), tx.Strings(),
	}
}

// Commit flushes every modified index bottom-up, writes a new trailer, and
// publishes it by advancing the header's single atomic pointer cell — the
// commit protocol from spec §4.C/§4.E/§5.
func (tx *Transaction) Commit() error {
	if err := tx.requireOpen(); err != nil {
		return err
	}
	db := tx.db
	if err := db.checkLockHeld(); err != nil {
		tx.state = txAborted
		db.mu.Lock()
		db.txOpen = false
		db.mu.Unlock()
		return err
	}

	for _, h := range tx.indexHandles() {
		if err := h.flush(tx.alloc); err != nil {
			tx.state = txAborted
			db.mu.Lock()
			db.txOpen = false
			db.mu.Unlock()
			return tx.db.markIntegrityFailure(err)
		}
	}

	// Route the trailer through the allocator rather than hand-aligning the
	// high-water mark directly, so it inherits the same
	// never-straddle-a-region guarantee every other allocation gets
	// (allocator.go's allocRW, spec §4.A/§4.D).
	buf, trailerAddr, err := tx.alloc.allocRW(trailerSize, 8)
	if err != nil {
		tx.state = txAborted
		return err
	}
	newFileSize := tx.alloc.hwm

	t := &trailer{
		revision:    tx.version,
		prevTrailer: db.latestAddr,
		fileSize:    newFileSize,
		timeMs:      uint64(time.Now().UnixMilli()),
	}
	for k := 0; k < numIndexKinds; k++ {
		t.indexRoots[k] = tx.roots[k].addr
	}
	encodeTrailer(buf, t)

	if err := db.as.flush(tx.txStart, newFileSize); err != nil {
		tx.state = txAborted
		return err
	}
	if err := db.file.Sync(); err != nil {
		tx.state = txAborted
		return err
	}

	headerBuf, err := db.as.addressToPointer(0, headerSize)
	if err != nil {
		tx.state = txAborted
		return err
	}
	binary.LittleEndian.PutUint64(headerBuf[latestTrailerOffset:latestTrailerOffset+8], trailerAddr)
	if err := db.as.flush(latestTrailerOffset, latestTrailerOffset+8); err != nil {
		tx.state = txAborted
		return err
	}
	if err := db.file.Sync(); err != nil {
		tx.state = txAborted
		return err
	}

	db.mu.Lock()
	db.latestAddr = trailerAddr
	db.latestTrail = t
	db.hwm = newFileSize
	db.txOpen = false
	db.mu.Unlock()

	tx.state = txCommitted
	db.log.Info().Uint64("revision", t.revision).Uint64("file_size", t.fileSize).Msg("committed")
	return nil
}

// Rollback discards every in-memory modification and restores the
// allocator's high-water mark; no on-disk state changes (spec §4.D, §4.E).
func (tx *Transaction) Rollback() error {
	if err := tx.requireOpen(); err != nil {
		return err
	}

	tx.alloc.rollback(tx.txStart)
	tx.state = txAborted

	tx.db.mu.Lock()
	tx.db.txOpen = false
	tx.db.mu.Unlock()

	return nil
}
