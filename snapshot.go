package pstore

// Snapshot is a read-only view bound to one committed revision (spec §4.G).
// Every Index accessor and Read call is safe from any thread; address
// translation takes the address space's read lock, so these reads are not
// lock-free, though they only wait on a concurrent growth. The underlying bytes are immutable for as long as the DB handle stays
// open (spec §5's shared-resource policy).
type Snapshot struct {
	db    *DB
	trail *trailer
	addr  uint64
	roots [numIndexKinds]childRef
}

// Revision resolves rev against the trailer chain (spec §4.G's revision
// operation) and returns a read-only Snapshot.
func (db *DB) Revision(rev Revision) (*Snapshot, error) {
	if err := db.checkUsable(); err != nil {
		return nil, err
	}

	if rev.IsHead() {
		return newSnapshot(db, db.latestTrail, db.latestAddr), nil
	}

	t, addr, err := findTrailerByRevision(db.readTrailer, db.latestAddr, rev.Number())
	if err != nil {
		return nil, err
	}
	return newSnapshot(db, t, addr), nil
}

func newSnapshot(db *DB, t *trailer, addr uint64) *Snapshot {
	s := &Snapshot{db: db, trail: t, addr: addr}
	for k := 0; k < numIndexKinds; k++ {
		s.roots[k] = storedRef(t.indexRoots[k], false)
	}
	return s
}

// Head is shorthand for Revision(HeadRevision).
func (db *DB) Head() (*Snapshot, error) { return db.Revision(HeadRevision) }

// Revision returns the snapshot's revision number.
func (s *Snapshot) Revision() uint64 { return s.trail.revision }

// Names returns a read-only handle onto the name index.
func (s *Snapshot) Names() *Index[uint64] {
	return newAddressIndex(KindName, s.db.as, s.db.pool, &s.roots[KindName], 0)
}

// Strings returns a read-only handle onto the strings index.
func (s *Snapshot) Strings() *Index[uint64] {
	return newAddressIndex(KindStrings, s.db.as, s.db.pool, &s.roots[KindStrings], 0)
}

// Fragment returns a read-only handle onto the fragment index.
func (s *Snapshot) Fragment() *Index[Extent] {
	return newExtentIndex(KindFragment, s.db.as, s.db.pool, &s.roots[KindFragment], 0)
}

// Compilation returns a read-only handle onto the compilation index.
func (s *Snapshot) Compilation() *Index[Extent] {
	return newExtentIndex(KindCompilation, s.db.as, s.db.pool, &s.roots[KindCompilation], 0)
}

// DebugLineHeader returns a read-only handle onto the debug_line_header index.
func (s *Snapshot) DebugLineHeader() *Index[Extent] {
	return newExtentIndex(KindDebugLineHeader, s.db.as, s.db.pool, &s.roots[KindDebugLineHeader], 0)
}

// Write returns a read-only handle onto the write index.
func (s *Snapshot) Write() *Index[Extent] {
	return newExtentIndex(KindWrite, s.db.as, s.db.pool, &s.roots[KindWrite], 0)
}

// Read returns the immutable byte range named by e. The returned slice
// aliases the memory-mapped file and must not be retained past Close.
func (s *Snapshot) Read(e Extent) ([]byte, error) {
	if err := s.db.checkUsable(); err != nil {
		return nil, err
	}
	return s.db.as.addressToPointer(e.Address, e.Size)
}
