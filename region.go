package pstore

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// addressSpace is the region manager (spec §4.A). It maps the backing file
// into the process as an ordered sequence of fixed-size regions and
// translates 64-bit store addresses to host byte slices.
//
// The teacher (mari) remaps the *entire* file as one growing mapping on
// every resize, which invalidates any slice obtained before the resize. That
// contradicts spec §4.A's explicit guarantee that "a pointer returned for a
// given address remains valid for the lifetime of the database handle"; here
// growth only ever adds a new region, it never remaps or moves an existing
// one, so previously returned slices stay valid for as long as the handle is
// open.
type addressSpace struct {
	mu sync.RWMutex

	file       *os.File
	mode       int
	regionSize uint64
	regions    []MMap // regions[i] covers [i*regionSize, (i+1)*regionSize)
	fileSize   uint64

	log zerolog.Logger
}

func newAddressSpace(f *os.File, mode int, regionSize uint64, log zerolog.Logger) *addressSpace {
	return &addressSpace{
		file:       f,
		mode:       mode,
		regionSize: regionSize,
		log:        componentLogger(log, "region"),
	}
}

// mapExisting maps every region already covered by the file's current size.
// Called once at Open for a file that already has content.
func (as *addressSpace) mapExisting() error {
	stat, statErr := as.file.Stat()
	if statErr != nil {
		return statErr
	}

	size := uint64(stat.Size())
	as.mu.Lock()
	defer as.mu.Unlock()

	for covered := uint64(0); covered < size; covered += as.regionSize {
		length := as.regionSize
		if covered+length > size {
			length = size - covered
		}

		region, mapErr := mapRegion(as.file, int64(covered), int(length), as.mode)
		if mapErr != nil {
			return mapErr
		}

		as.regions = append(as.regions, region)
	}

	as.fileSize = size
	return nil
}

// fileSizeNow returns the current committed file size as tracked by the
// address space (not necessarily the OS-level file size, which may be ahead
// by up to one region due to pre-extension).
func (as *addressSpace) fileSizeNow() uint64 {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.fileSize
}

// grow ensures the address space covers at least newSize bytes, extending
// the backing file and mapping any newly-needed regions. Existing regions
// are left mapped exactly where they were.
func (as *addressSpace) grow(newSize uint64) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if newSize <= as.fileSize {
		return nil
	}

	neededRegions := int((newSize + as.regionSize - 1) / as.regionSize)
	fileTarget := uint64(neededRegions) * as.regionSize

	if truncErr := as.file.Truncate(int64(fileTarget)); truncErr != nil {
		return truncErr
	}

	for len(as.regions) < neededRegions {
		idx := len(as.regions)
		region, mapErr := mapRegion(as.file, int64(uint64(idx)*as.regionSize), int(as.regionSize), as.mode)
		if mapErr != nil {
			return mapErr
		}

		as.regions = append(as.regions, region)
		as.log.Debug().Int("region_index", idx).Uint64("region_size", as.regionSize).Msg("mapped new region")
	}

	as.fileSize = newSize
	return nil
}

// addressToPointer returns the host byte slice for [addr, addr+length). It
// fails with ErrAddressOutOfRange if the span is not entirely covered by a
// single region, or extends past the current file size (spec §4.A).
func (as *addressSpace) addressToPointer(addr, length uint64) (MMap, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()

	if length == 0 {
		return MMap{}, nil
	}

	if addr+length > as.fileSize {
		return nil, wrap(ErrAddressOutOfRange)
	}

	regionIdx := addr / as.regionSize
	offsetInRegion := addr % as.regionSize

	if int(regionIdx) >= len(as.regions) {
		return nil, wrap(ErrAddressOutOfRange)
	}

	region := as.regions[regionIdx]
	end := offsetInRegion + length
	if end > uint64(len(region)) {
		return nil, wrap(ErrAddressOutOfRange)
	}

	return region[offsetInRegion:end], nil
}

// flush writes the dirty pages spanning [startAddr, endAddr) back to disk,
// normalizing the start to the beginning of its OS page the way the teacher
// does in flushRegionToDisk, so the slice handed to msync is page-aligned.
func (as *addressSpace) flush(startAddr, endAddr uint64) error {
	pageSize := uint64(os.Getpagesize())

	as.mu.RLock()
	defer as.mu.RUnlock()

	for addr := startAddr; addr < endAddr; {
		regionIdx := addr / as.regionSize
		if int(regionIdx) >= len(as.regions) {
			return wrap(ErrAddressOutOfRange)
		}

		regionStart := regionIdx * as.regionSize
		regionEnd := regionStart + as.regionSize
		spanEnd := endAddr
		if spanEnd > regionEnd {
			spanEnd = regionEnd
		}

		alignedStart := addr & ^(pageSize - 1)
		region := as.regions[regionIdx]

		loOff := alignedStart - regionStart
		hiOff := spanEnd - regionStart
		if hiOff > uint64(len(region)) {
			hiOff = uint64(len(region))
		}

		if flushErr := region[loOff:hiOff].Flush(); flushErr != nil {
			return flushErr
		}

		addr = spanEnd
	}

	return nil
}

// close unmaps every region.
func (as *addressSpace) close() error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for _, region := range as.regions {
		if unmapErr := region.Unmap(); unmapErr != nil {
			return unmapErr
		}
	}

	as.regions = nil
	return nil
}
