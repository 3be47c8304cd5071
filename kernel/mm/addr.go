package mm

// PhysicalAddr is an address on the physical memory bus.
type PhysicalAddr uint32

// VirtualAddr is an address as seen by code running with paging enabled. It
// decomposes into a 10-bit directory index, a 10-bit table index and a 12-bit
// offset.
type VirtualAddr uint32

// DirectoryIndex returns bits 22-31 of the address.
func (a VirtualAddr) DirectoryIndex() uint32 {
	return uint32(a) >> DirectoryShift
}

// TableIndex returns bits 12-21 of the address.
func (a VirtualAddr) TableIndex() uint32 {
	return (uint32(a) >> PageShift) & (EntriesPerTable - 1)
}

// Offset returns bits 0-11 of the address.
func (a VirtualAddr) Offset() uint32 {
	return uint32(a) & (PageSize - 1)
}

// AlignUp rounds addr up to the next multiple of align which must be a power
// of two. The second return value is false if the result does not fit in 32
// bits.
func AlignUp(addr uint32, align uint32) (uint32, bool) {
	aligned := (uint64(addr) + uint64(align) - 1) &^ (uint64(align) - 1)
	if aligned > 0xffffffff {
		return 0, false
	}
	return uint32(aligned), true
}
