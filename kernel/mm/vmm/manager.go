// Package vmm builds the two-level i386 translation tables and activates
// paging.
package vmm

import (
	"gopher386/kernel"
	"gopher386/kernel/cpu"
	"gopher386/kernel/kfmt"
	"gopher386/kernel/mm"
)

var (
	// ErrAlreadyMapped is returned when a mapping would overwrite a
	// present entry.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// These are used by tests to override calls which will cause a fault
	// if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry
	switchPDTFn     = cpu.SwitchPDT
	enablePagingFn  = cpu.EnablePaging
)

// PagingUnit loads translation roots, switches the MMU on and invalidates
// cached translations.
type PagingUnit interface {
	// LoadRoot installs the page directory at root as the active
	// translation root.
	LoadRoot(root mm.PhysicalAddr)

	// EnablePaging turns address translation on.
	EnablePaging()

	// FlushTLBEntry drops any cached translation for the page that
	// contains virt.
	FlushTLBEntry(virt mm.VirtualAddr)
}

// CPUPagingUnit drives the paging unit of the current CPU.
type CPUPagingUnit struct{}

// LoadRoot loads root into CR3.
func (CPUPagingUnit) LoadRoot(root mm.PhysicalAddr) { switchPDTFn(uintptr(root)) }

// EnablePaging sets the paging bit in CR0.
func (CPUPagingUnit) EnablePaging() { enablePagingFn() }

// FlushTLBEntry invalidates the TLB entry for virt using INVLPG.
func (CPUPagingUnit) FlushTLBEntry(virt mm.VirtualAddr) { flushTLBEntryFn(uintptr(virt)) }

// MemoryManager owns the kernel page directory and the frame allocator used
// to populate it.
type MemoryManager struct {
	frames    FrameAllocator
	unit      PagingUnit
	directory PageDirectory
	pagingOn  bool
}

// Init allocates an empty page directory using frames. The page directory is
// activated by a later call to EnablePaging.
func (m *MemoryManager) Init(frames FrameAllocator, unit PagingUnit) *kernel.Error {
	pd, err := NewPageDirectory(frames)
	if err != nil {
		return err
	}

	m.frames = frames
	m.unit = unit
	m.directory = pd
	m.pagingOn = false

	kfmt.Printf("[vmm] page directory at 0x%x\n", uint32(pd.PhysicalAddr()))
	return nil
}

// Directory returns the kernel page directory.
func (m *MemoryManager) Directory() PageDirectory { return m.directory }

// PagingEnabled returns true once EnablePaging has been called.
func (m *MemoryManager) PagingEnabled() bool { return m.pagingOn }

// MapAddrWithoutPaging maps the page containing virt to the frame containing
// phys. If the directory entry for virt is not present, a new page table is
// allocated for it. pdFlags are always added to the directory entry. The call
// fails with ErrAlreadyMapped if the table entry for virt is present.
//
// Page tables are accessed through their physical address so this must
// either run before paging is enabled or while the tables are identity
// mapped.
func (m *MemoryManager) MapAddrWithoutPaging(virt mm.VirtualAddr, phys mm.PhysicalAddr, pdFlags, ptFlags Flag) *kernel.Error {
	var (
		dirIndex = virt.DirectoryIndex()
		pde      = m.directory.Entry(dirIndex)
		pt       PageTable
		err      *kernel.Error
	)

	if pde.HasFlags(FlagPresent) {
		pt = pde.Table()
	} else if pt, err = m.directory.AllocNewPageTable(m.frames, dirIndex, pdFlags); err != nil {
		return err
	}
	pde.SetFlags(pdFlags)

	pte := pt.Entry(virt.TableIndex())
	if pte.HasFlags(FlagPresent) {
		return ErrAlreadyMapped
	}

	*pte = PageTableEntry{}
	pte.SetFlags(ptFlags | FlagPresent)
	pte.SetFrame(mm.FrameFromAddress(phys))

	if m.pagingOn {
		m.unit.FlushTLBEntry(virt)
	}

	return nil
}

// SetUpIdentityPaging maps every 4MiB region that overlaps [0, limit) onto
// the same physical addresses. Each region gets a new page table whose
// entries are flagged as present, writable and not cacheable. The call fails
// with ErrAlreadyMapped if a region already has a page table.
func (m *MemoryManager) SetUpIdentityPaging(limit mm.Size) *kernel.Error {
	regions := uint32((limit + mm.RegionSize - 1) / mm.RegionSize)
	if regions > mm.EntriesPerTable {
		regions = mm.EntriesPerTable
	}

	for dirIndex := uint32(0); dirIndex < regions; dirIndex++ {
		if m.directory.Entry(dirIndex).HasFlags(FlagPresent) {
			return ErrAlreadyMapped
		}

		pt, err := m.directory.AllocNewPageTable(m.frames, dirIndex, FlagPresent|FlagWritable)
		if err != nil {
			return err
		}

		firstFrame := mm.Frame(dirIndex * mm.EntriesPerTable)
		for tableIndex := uint32(0); tableIndex < mm.EntriesPerTable; tableIndex++ {
			pte := pt.Entry(tableIndex)
			pte.SetFlags(FlagPresent | FlagWritable | FlagNotCacheable)
			pte.SetFrame(firstFrame + mm.Frame(tableIndex))
		}
	}

	kfmt.Printf("[vmm] identity mapped [0x0 - 0x%x)\n", uint64(mm.Size(regions)*mm.RegionSize))
	return nil
}

// EnablePaging installs the page directory as the translation root and
// turns paging on.
func (m *MemoryManager) EnablePaging() {
	m.unit.LoadRoot(m.directory.PhysicalAddr())
	m.unit.EnablePaging()
	m.pagingOn = true

	kfmt.Printf("[vmm] paging enabled\n")
}

// Translate returns the physical address that virt maps to. It returns
// ErrInvalidMapping if either level of the translation is not present.
func (m *MemoryManager) Translate(virt mm.VirtualAddr) (mm.PhysicalAddr, *kernel.Error) {
	pde := m.directory.Entry(virt.DirectoryIndex())
	if !pde.HasFlags(FlagPresent) || pde.HasFlags(FlagBigPage) {
		return 0, ErrInvalidMapping
	}

	pte := pde.Table().Entry(virt.TableIndex())
	if !pte.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	return pte.Frame().Address() + mm.PhysicalAddr(virt.Offset()), nil
}

// MappingVisitor is invoked by VisitMappings for each present page. Returning
// false stops the walk.
type MappingVisitor func(virt mm.VirtualAddr, pte PageTableEntry) bool

// VisitMappings invokes visitor for every present table entry in ascending
// virtual address order.
func (m *MemoryManager) VisitMappings(visitor MappingVisitor) {
	for dirIndex := uint32(0); dirIndex < mm.EntriesPerTable; dirIndex++ {
		pde := m.directory.Entry(dirIndex)
		if !pde.HasFlags(FlagPresent) || pde.HasFlags(FlagBigPage) {
			continue
		}

		pt := pde.Table()
		for tableIndex := uint32(0); tableIndex < mm.EntriesPerTable; tableIndex++ {
			pte := pt.Entry(tableIndex)
			if !pte.HasFlags(FlagPresent) {
				continue
			}

			virt := mm.VirtualAddr(dirIndex<<mm.DirectoryShift | tableIndex<<mm.PageShift)
			if !visitor(virt, *pte) {
				return
			}
		}
	}
}
