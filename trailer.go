package pstore

import (
	"encoding/binary"
	"hash/crc32"
)

// Trailer is the fixed 512-byte commit record (spec §6). Every field except
// crc32_c is fixed before the node is written; crc32_c covers everything
// that precedes it.
//
// CRC32C (Castagnoli) is computed with the standard library's hash/crc32:
// none of the example repos import a third-party CRC32C package, and the
// polynomial is a one-line stdlib table lookup — not a concern any pack
// library covers, so this is the one deliberately stdlib-only piece of the
// on-disk format (recorded in DESIGN.md).
const trailerSize = 512

var (
	trailerMagicBegin = [8]byte{'p', 's', 't', 'r', 'l', 'r', 'B', 0}
	trailerMagicEnd   = [8]byte{'p', 's', 't', 'r', 'l', 'r', 'E', 0}
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

type trailer struct {
	revision    uint64
	prevTrailer uint64 // 0 for genesis
	fileSize    uint64
	timeMs      uint64
	indexRoots  [numIndexKinds]uint64 // order: name, fragment, compilation, debug_line_header, write, strings
}

// crc32cOffset is the byte offset of the trailer's checksum field — after
// magic_begin, the four u64 scalars, and the index_roots array.
const crc32cOffset = 8 + 8*4 + 8*numIndexKinds

func encodeTrailer(buf []byte, t *trailer) {
	copy(buf[0:8], trailerMagicBegin[:])
	binary.LittleEndian.PutUint64(buf[8:16], t.revision)
	binary.LittleEndian.PutUint64(buf[16:24], t.prevTrailer)
	binary.LittleEndian.PutUint64(buf[24:32], t.fileSize)
	binary.LittleEndian.PutUint64(buf[32:40], t.timeMs)

	off := 40
	for _, root := range t.indexRoots {
		binary.LittleEndian.PutUint64(buf[off:off+8], root)
		off += 8
	}

	crc := crc32.Checksum(buf[:crc32cOffset], crc32cTable)
	binary.LittleEndian.PutUint32(buf[crc32cOffset:crc32cOffset+4], crc)

	for i := crc32cOffset + 4; i < trailerSize-8; i++ {
		buf[i] = 0
	}
	copy(buf[trailerSize-8:trailerSize], trailerMagicEnd[:])
}

func decodeTrailer(buf []byte) (*trailer, error) {
	if len(buf) < trailerSize {
		return nil, wrap(ErrCorruptNode)
	}

	var magicBegin, magicEnd [8]byte
	copy(magicBegin[:], buf[0:8])
	copy(magicEnd[:], buf[trailerSize-8:trailerSize])
	if magicBegin != trailerMagicBegin || magicEnd != trailerMagicEnd {
		return nil, wrap(ErrBadMagic)
	}

	wantCRC := binary.LittleEndian.Uint32(buf[crc32cOffset : crc32cOffset+4])
	gotCRC := crc32.Checksum(buf[:crc32cOffset], crc32cTable)
	if wantCRC != gotCRC {
		return nil, wrap(ErrBadChecksum)
	}

	t := &trailer{
		revision:    binary.LittleEndian.Uint64(buf[8:16]),
		prevTrailer: binary.LittleEndian.Uint64(buf[16:24]),
		fileSize:    binary.LittleEndian.Uint64(buf[24:32]),
		timeMs:      binary.LittleEndian.Uint64(buf[32:40]),
	}

	off := 40
	for i := range t.indexRoots {
		t.indexRoots[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}

	return t, nil
}

// findTrailerByRevision walks the prev-link chain from latest until it
// finds a trailer with the requested revision number (spec §4.G). Callers
// supply a reader for an arbitrary trailer address since the chain is
// walked before any Index/Snapshot object exists.
func findTrailerByRevision(readTrailer func(addr uint64) (*trailer, error), latestAddr uint64, revision uint64) (*trailer, uint64, error) {
	addr := latestAddr
	for {
		t, err := readTrailer(addr)
		if err != nil {
			return nil, 0, err
		}
		if t.revision == revision {
			return t, addr, nil
		}
		if t.revision < revision || t.prevTrailer == 0 && t.revision != 0 {
			return nil, 0, wrap(ErrUnknownRevision)
		}
		if t.revision == 0 {
			return nil, 0, wrap(ErrUnknownRevision)
		}
		addr = t.prevTrailer
	}
}
