//go:build unix

package pstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// MMap is the byte-slice view of one memory-mapped region. It is the host
// pointer the region manager (component A) hands back for a given store
// address, and the unit flush/unmap operate on.
type MMap []byte

// Mapping mode flags, matching the teacher's RDONLY/RDWR/COPY/EXEC shape.
const (
	RDONLY = 0
	RDWR   = 1 << iota
	COPY
	EXEC
)

// mapRegion memory-maps length bytes of f starting at the (page-aligned)
// file offset. Unlike a single whole-file mapping, this is designed to be
// called once per fixed-size region (spec §4.A): the returned slice's
// address never moves for the lifetime of the handle, so pointers derived
// from it stay valid even as later regions are added by growth.
func mapRegion(f *os.File, offset int64, length int, mode int) (MMap, error) {
	if length == 0 {
		return MMap{}, nil
	}

	prot := unix.PROT_READ
	flags := unix.MAP_SHARED
	if mode&RDWR != 0 {
		prot |= unix.PROT_WRITE
	}
	if mode&COPY != 0 {
		flags = unix.MAP_PRIVATE
	}
	if mode&EXEC != 0 {
		prot |= unix.PROT_EXEC
	}

	data, mmapErr := unix.Mmap(int(f.Fd()), offset, length, prot, flags)
	if mmapErr != nil {
		return nil, mmapErr
	}

	return MMap(data), nil
}

// Flush synchronously writes this region's dirty pages back to the backing
// file (msync). Callers must pass a page-aligned sub-slice (the region
// manager handles alignment before calling this).
func (m MMap) Flush() error {
	if len(m) == 0 {
		return nil
	}
	return unix.Msync(m, unix.MS_SYNC)
}

// Unmap releases the mapping. Safe to call on an empty MMap.
func (m MMap) Unmap() error {
	if len(m) == 0 {
		return nil
	}
	return unix.Munmap(m)
}
