package pstore

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DB is a handle to one pstore database file (component G's Open, wired to
// every other component). Exactly one writable DB handle may exist for a
// given file at a time (enforced by the lock file); any number of read-only
// handles may coexist.
type DB struct {
	path string
	mode Mode
	opts Options

	file *os.File
	as   *addressSpace
	pool *nodePool

	lockH *writerLock // nil for ReadOnly

	mu          sync.Mutex // serializes Close, Begin, Commit and Rollback bookkeeping against each other
	txOpen      bool
	hwm         uint64
	latestAddr  uint64
	latestTrail *trailer

	unusable atomic.Bool
	log      zerolog.Logger
}

// Open validates the header (or creates one for a new Writable database),
// maps the address space, and — for Writable — acquires the lock file
// (spec §4.G, §4.B).
func Open(path string, mode Mode, opts ...Option) (*DB, error) {
	o := NewOptions().apply(opts)
	log := componentLogger(Logger, "db")

	flag := os.O_RDONLY
	if mode == Writable {
		flag = os.O_RDWR | os.O_CREATE
	}

	f, openErr := os.OpenFile(path, flag, 0o644)
	if openErr != nil {
		return nil, openErr
	}

	stat, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		return nil, statErr
	}

	db := &DB{
		path: path,
		mode: mode,
		opts: o,
		file: f,
		pool: newNodePool(),
		log:  log,
	}

	mmapMode := RDONLY
	if mode == Writable {
		mmapMode = RDWR
	}
	db.as = newAddressSpace(f, mmapMode, uint64(o.regionSize), log)

	if stat.Size() == 0 {
		if mode != Writable {
			f.Close()
			return nil, wrap(ErrBadMagic)
		}
		// initializeFile maps the header/genesis-trailer region itself via
		// grow(); mapExisting would double-map region 0 on top of it.
		if err := db.initializeFile(); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := db.as.mapExisting(); err != nil {
		f.Close()
		return nil, err
	}

	if err := db.loadHeaderAndLatest(); err != nil {
		db.as.close()
		f.Close()
		return nil, err
	}

	if mode == Writable {
		lockH, lockErr := acquireLock(path, o.heartbeatInterval, o.lockGracePeriod, log)
		if lockErr != nil {
			db.as.close()
			f.Close()
			return nil, lockErr
		}
		db.lockH = lockH
		db.hwm = db.as.fileSizeNow()
	}

	return db, nil
}

// initializeFile writes the 256-byte header and the genesis trailer (spec
// §4.C step 1) for a brand-new database file.
func (db *DB) initializeFile() error {
	totalSize := uint64(headerSize + trailerSize)
	if err := db.file.Truncate(int64(totalSize)); err != nil {
		return err
	}
	if err := db.as.grow(totalSize); err != nil {
		return err
	}

	now := uint64(time.Now().UnixMilli())

	h := newHeader(now)
	h.latestTrailerAddr = headerSize

	hBuf, hErr := db.as.addressToPointer(0, headerSize)
	if hErr != nil {
		return hErr
	}
	encodeHeader(hBuf, h)

	genesis := &trailer{
		revision:    0,
		prevTrailer: 0,
		fileSize:    totalSize,
		timeMs:      now,
	}
	tBuf, tErr := db.as.addressToPointer(headerSize, trailerSize)
	if tErr != nil {
		return tErr
	}
	encodeTrailer(tBuf, genesis)

	if err := db.as.flush(0, totalSize); err != nil {
		return err
	}
	return db.file.Sync()
}

func (db *DB) loadHeaderAndLatest() error {
	hBuf, err := db.as.addressToPointer(0, headerSize)
	if err != nil {
		return err
	}
	h, err := decodeHeader(hBuf)
	if err != nil {
		return err
	}

	db.latestAddr = h.latestTrailerAddr
	t, err := db.readTrailer(db.latestAddr)
	if err != nil {
		return err
	}
	db.latestTrail = t
	return nil
}

func (db *DB) readTrailer(addr uint64) (*trailer, error) {
	buf, err := db.as.addressToPointer(addr, trailerSize)
	if err != nil {
		return nil, err
	}
	return decodeTrailer(buf)
}

// Close unmaps the address space, releases the lock (if held), and closes
// the file handle.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.lockH != nil {
		if err := db.lockH.release(); err != nil {
			db.log.Error().Err(err).Msg("error releasing writer lock")
		}
	}
	if err := db.as.close(); err != nil {
		return err
	}
	return db.file.Close()
}
