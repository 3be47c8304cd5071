package vmm

import (
	"gopher386/kernel"
	"gopher386/kernel/mm"
)

// FrameAllocator is the source of the frames that hold page directories and
// page tables.
type FrameAllocator interface {
	Allocate() (mm.Frame, *kernel.Error)
	Deallocate(mm.Frame)
}

// entryAddr returns the address of the index-th 32-bit entry of the table
// stored in frame.
func entryAddr(frame mm.Frame, index uint32) uintptr {
	return uintptr(frame.Address()) + uintptr(index)*mm.WordSize
}

// allocTableFrame allocates a frame and clears its 1024 entries.
func allocTableFrame(frames FrameAllocator) (mm.Frame, *kernel.Error) {
	frame, err := frames.Allocate()
	if err != nil {
		return mm.InvalidFrame, err
	}

	mm.Memset(uintptr(frame.Address()), 0, mm.PageSize)
	return frame, nil
}

// PageDirectory is the top-level translation table. Its 1024 entries live in
// a single physical frame and are only reached through that frame's address.
type PageDirectory struct {
	frame mm.Frame
}

// NewPageDirectory allocates a frame for a new page directory and marks all
// of its entries as not present.
func NewPageDirectory(frames FrameAllocator) (PageDirectory, *kernel.Error) {
	frame, err := allocTableFrame(frames)
	if err != nil {
		return PageDirectory{frame: mm.InvalidFrame}, err
	}

	return PageDirectory{frame: frame}, nil
}

// Frame returns the frame that stores the directory entries.
func (pd PageDirectory) Frame() mm.Frame { return pd.frame }

// PhysicalAddr returns the physical address of the directory, suitable for
// loading into CR3.
func (pd PageDirectory) PhysicalAddr() mm.PhysicalAddr { return pd.frame.Address() }

// Entry returns a pointer to the directory entry at index.
func (pd PageDirectory) Entry(index uint32) *PageDirectoryEntry {
	return (*PageDirectoryEntry)(mm.Ptr(entryAddr(pd.frame, index)))
}

// AllocNewPageTable allocates a cleared frame for a new page table and points
// the directory entry at index to it using flags. The entry is always marked
// as present.
func (pd PageDirectory) AllocNewPageTable(frames FrameAllocator, index uint32, flags Flag) (PageTable, *kernel.Error) {
	frame, err := allocTableFrame(frames)
	if err != nil {
		return PageTable{frame: mm.InvalidFrame}, err
	}

	pde := pd.Entry(index)
	*pde = PageDirectoryEntry{}
	pde.SetFlags(flags | FlagPresent)
	pde.SetFrame(frame)

	return PageTable{frame: frame}, nil
}

// PageTable is a second-level translation table. Its 1024 entries live in a
// single physical frame.
type PageTable struct {
	frame mm.Frame
}

// Frame returns the frame that stores the table entries.
func (pt PageTable) Frame() mm.Frame { return pt.frame }

// Entry returns a pointer to the table entry at index.
func (pt PageTable) Entry(index uint32) *PageTableEntry {
	return (*PageTableEntry)(mm.Ptr(entryAddr(pt.frame, index)))
}
