package pstore

// allocator is the per-transaction bump allocator (spec §4.D). It advances a
// high-water mark within the address space and never reuses committed space;
// on rollback the mark simply retreats, and everything written past it
// becomes unreachable garbage the next transaction will overwrite.
type allocator struct {
	as  *addressSpace
	hwm uint64
}

func newAllocator(as *addressSpace, hwm uint64) *allocator {
	return &allocator{as: as, hwm: hwm}
}

// begin captures the current high-water mark as tx_start, to be restored by
// a later rollback.
func (a *allocator) begin() uint64 { return a.hwm }

func alignUp(offset, align uint64) uint64 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// allocRW aligns the high-water mark to align, grows the file if necessary,
// and returns a writable view of the newly reserved span plus its store
// address. An allocation is never allowed to straddle two regions: if it
// wouldn't fit in the remainder of the current region, the mark jumps to the
// start of the next one first (spec §4.A region boundaries, §4.D alignment).
func (a *allocator) allocRW(size, align uint64) (MMap, uint64, error) {
	if size == 0 {
		return MMap{}, a.hwm, nil
	}

	addr := alignUp(a.hwm, align)

	regionSize := a.as.regionSize
	if regionSize > 0 {
		startRegion := addr / regionSize
		endRegion := (addr + size - 1) / regionSize
		if startRegion != endRegion {
			addr = alignUp((startRegion+1)*regionSize, align)
		}
	}

	end := addr + size
	if growErr := a.as.grow(end); growErr != nil {
		return nil, 0, wrap(ErrOutOfSpace)
	}

	ptr, ptrErr := a.as.addressToPointer(addr, size)
	if ptrErr != nil {
		return nil, 0, ptrErr
	}

	a.hwm = end
	return ptr, addr, nil
}

// allocRO returns a read-only view of previously committed bytes.
func (a *allocator) allocRO(addr, size uint64) (MMap, error) {
	return a.as.addressToPointer(addr, size)
}

// rollback resets the high-water mark to mark (the value captured by
// begin()). Any writable pointers returned since must not be used again.
func (a *allocator) rollback(mark uint64) {
	a.hwm = mark
}
