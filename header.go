package pstore

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Header is the fixed 256-byte record at offset 0 (spec §6). It is written
// once at database creation and never rewritten except for the single
// aligned latest-trailer-address cell that the commit protocol flips last.
const headerSize = 256

var headerMagic = [8]byte{'p', 's', 't', 'o', 'r', 'e', 0, 0}

// latestTrailerOffset is the byte offset of the header's one mutable cell —
// an 8-byte aligned field, so the commit protocol's final write (spec §4.C,
// §5) is a single atomic word on every platform this runs on.
const latestTrailerOffset = 8 + 8 + 16 // magic + version + uuid

type headerVersion struct {
	Major, Minor, Patch, Reserved uint16
}

type header struct {
	magic              [8]byte
	version            headerVersion
	uuid               uuid.UUID
	latestTrailerAddr  uint64
	creationTimeMs     uint64
}

// formatMajor/formatMinor are the version this implementation writes.
// decodeHeader accepts only files whose major version equals formatMajor;
// the minor version is not checked.
const (
	formatMajor = 1
	formatMinor = 0
)

func newHeader(nowMs uint64) *header {
	return &header{
		magic:          headerMagic,
		version:        headerVersion{Major: formatMajor, Minor: formatMinor},
		uuid:           uuid.New(),
		creationTimeMs: nowMs,
	}
}

func encodeHeader(buf []byte, h *header) {
	copy(buf[0:8], h.magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.version.Major)
	binary.LittleEndian.PutUint16(buf[10:12], h.version.Minor)
	binary.LittleEndian.PutUint16(buf[12:14], h.version.Patch)
	binary.LittleEndian.PutUint16(buf[14:16], h.version.Reserved)
	uuidBytes, _ := h.uuid.MarshalBinary()
	copy(buf[16:32], uuidBytes)
	binary.LittleEndian.PutUint64(buf[latestTrailerOffset:latestTrailerOffset+8], h.latestTrailerAddr)
	binary.LittleEndian.PutUint64(buf[40:48], h.creationTimeMs)
	for i := 48; i < headerSize; i++ {
		buf[i] = 0
	}
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < headerSize {
		return nil, wrap(ErrBadMagic)
	}

	var h header
	copy(h.magic[:], buf[0:8])
	if h.magic != headerMagic {
		return nil, wrap(ErrBadMagic)
	}

	h.version = headerVersion{
		Major:    binary.LittleEndian.Uint16(buf[8:10]),
		Minor:    binary.LittleEndian.Uint16(buf[10:12]),
		Patch:    binary.LittleEndian.Uint16(buf[12:14]),
		Reserved: binary.LittleEndian.Uint16(buf[14:16]),
	}
	if h.version.Major != formatMajor {
		return nil, wrap(ErrBadVersion)
	}

	if err := h.uuid.UnmarshalBinary(buf[16:32]); err != nil {
		return nil, wrap(ErrBadMagic)
	}

	h.latestTrailerAddr = binary.LittleEndian.Uint64(buf[latestTrailerOffset : latestTrailerOffset+8])
	h.creationTimeMs = binary.LittleEndian.Uint64(buf[40:48])

	return &h, nil
}
