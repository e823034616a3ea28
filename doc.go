// Package pstore is an embeddable, append-only, content-addressed
// persistent key/value store built on a single memory-mapped file.
//
// Writers publish changes as atomic transactions that extend the file;
// readers observe immutable snapshots identified by monotonically
// increasing revision numbers. Durability comes from a strictly
// append-only layout plus a durably-written trailer that commits each new
// revision — the header's one mutable cell only ever advances to a trailer
// whose bytes are already synced to disk.
//
//	db, err := pstore.Open("repo.db", pstore.Writable)
//	tx, err := db.Begin()
//	buf, addr, err := tx.AllocRW(uint64(len(data)), 1)
//	copy(buf, data)
//	err = tx.Write().InsertOrAssign([]byte("key"), pstore.Extent{Address: addr, Size: uint64(len(data))})
//	err = tx.Commit()
package pstore
