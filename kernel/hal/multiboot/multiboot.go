// Package multiboot reads the boot information structure passed by a
// multiboot (version 1) compliant bootloader.
package multiboot

import (
	"gopher386/kernel"
	"gopher386/kernel/mm"
)

// BootloaderMagic is the value a compliant bootloader leaves in EAX.
const BootloaderMagic = 0x2BADB002

// infoFlag marks which fields of the info structure are valid.
type infoFlag uint32

const (
	flagMemInfo    infoFlag = 1 << 0
	flagMemoryMap  infoFlag = 1 << 6
	flagsOffset             = 0
	memLowerOffset          = 4
	memUpperOffset          = 8
	mmapLenOffset           = 44
	mmapAddrOffset          = 48

	// lowMemory is the conventional memory below the region reported by
	// mem_upper.
	lowMemory = mm.Mb
)

var (
	// ErrBadMagic is returned when the bootloader magic value does not
	// identify a multiboot compliant loader.
	ErrBadMagic = &kernel.Error{Module: "multiboot", Message: "invalid bootloader magic value"}

	// ErrNoMemoryInfo is returned when the bootloader did not provide the
	// mem_lower/mem_upper fields.
	ErrNoMemoryInfo = &kernel.Error{Module: "multiboot", Message: "bootloader did not report memory size"}

	infoData uintptr
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

var memTypeNames = []string{
	"available",
	"reserved",
	"ACPI (reclaimable)",
	"NVS",
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	if t == 0 || t >= memUnknown {
		return memTypeNames[MemReserved-1]
	}
	return memTypeNames[t-1]
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// CheckMagic verifies the value that the bootloader passed in EAX.
func CheckMagic(magic uint32) *kernel.Error {
	if magic != BootloaderMagic {
		return ErrBadMagic
	}
	return nil
}

func field(offset uintptr) uint32 {
	return *mm.Word(infoData + offset)
}

func hasFlag(flag infoFlag) bool {
	return infoFlag(field(flagsOffset))&flag != 0
}

// MemoryInfo returns the amount of lower and upper memory in kilobytes.
// Lower memory starts at address 0 and upper memory starts at 1MiB.
func MemoryInfo() (lowerKb, upperKb uint32, err *kernel.Error) {
	if !hasFlag(flagMemInfo) {
		return 0, 0, ErrNoMemoryInfo
	}
	return field(memLowerOffset), field(memUpperOffset), nil
}

// TotalMemory returns the amount of physical memory that the kernel manages:
// the first 1MiB plus the upper memory reported by the bootloader.
func TotalMemory() (mm.Size, *kernel.Error) {
	_, upperKb, err := MemoryInfo()
	if err != nil {
		return 0, err
	}
	return lowMemory + mm.Size(upperKb)*mm.Kb, nil
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	if !hasFlag(flagMemoryMap) {
		return
	}

	var (
		entry  MemoryMapEntry
		curPtr = uintptr(field(mmapAddrOffset))
		endPtr = curPtr + uintptr(field(mmapLenOffset))
	)

	// Each entry is prefixed by its size which does not include the size
	// field itself.
	for curPtr < endPtr {
		entrySize := *mm.Word(curPtr)
		entry.PhysAddress = *(*uint64)(mm.Ptr(curPtr + 4))
		entry.Length = *(*uint64)(mm.Ptr(curPtr + 12))
		entry.Type = MemoryEntryType(*mm.Word(curPtr + 20))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}

		curPtr += uintptr(entrySize) + 4
	}
}
