package vmm

import "gopher386/kernel/mm"

// Flag describes a flag bit of a page directory or page table entry.
type Flag uint32

const (
	// FlagPresent is set when the entry points to a frame in memory.
	FlagPresent Flag = 1 << iota

	// FlagWritable is set if the memory can be written to.
	FlagWritable

	// FlagUser is set if user-mode code can access the memory. If not set
	// only kernel code can access it.
	FlagUser

	// FlagWriteThrough enables write-through caching.
	FlagWriteThrough

	// FlagNotCacheable disables caching for the memory. It is used for
	// device memory and the identity mapping.
	FlagNotCacheable

	// FlagAccessed is set by the CPU when the entry is used for a translation.
	FlagAccessed

	// FlagDirty is set by the CPU when a page is written to.
	FlagDirty

	// FlagBigPage makes a directory entry map a 4MiB page instead of
	// pointing to a table. Big pages are not supported by this package.
	FlagBigPage

	// FlagGlobal prevents the TLB entry from being flushed on CR3 reloads.
	FlagGlobal
)

// FlagPAT shares bit 7 with FlagBigPage; in a page table entry it selects
// the page attribute table index.
const FlagPAT = FlagBigPage

// entryAddrMask selects the physical frame address stored in bits 12-31.
const entryAddrMask = ^uint32(mm.PageSize - 1)

// entry is the 32-bit layout shared by directory and table entries.
type entry uint32

// HasFlags returns true if this entry has all the input flags set.
func (e entry) HasFlags(flags Flag) bool {
	return uint32(e)&uint32(flags) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (e entry) HasAnyFlag(flags Flag) bool {
	return uint32(e)&uint32(flags) != 0
}

// SetFlags sets the input list of flags to the entry.
func (e *entry) SetFlags(flags Flag) {
	*e = entry(uint32(*e) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the entry.
func (e *entry) ClearFlags(flags Flag) {
	*e = entry(uint32(*e) &^ uint32(flags))
}

// Frame returns the physical frame that this entry points to.
func (e entry) Frame() mm.Frame {
	return mm.FrameFromAddress(mm.PhysicalAddr(uint32(e) & entryAddrMask))
}

// SetFrame updates the entry to point to the given physical frame while
// preserving its flags.
func (e *entry) SetFrame(frame mm.Frame) {
	*e = entry((uint32(*e) &^ entryAddrMask) | uint32(frame.Address()))
}

// PageDirectoryEntry is an entry of a PageDirectory. When present it points
// to the frame holding a PageTable.
type PageDirectoryEntry struct {
	entry
}

// Table returns a handle to the page table this entry points to. The result
// is only meaningful if the entry is present.
func (pde PageDirectoryEntry) Table() PageTable {
	return PageTable{frame: pde.Frame()}
}

// PageTableEntry is an entry of a PageTable. When present it maps a 4KiB
// virtual page to a physical frame.
type PageTableEntry struct {
	entry
}
