package main

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"gopher386/kernel/hal/multiboot"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/vmm"
)

// Location of the boot information written by the simulated bootloader.
const (
	bootInfoAddr = 0x9000
	memMapAddr   = 0x9100
	memMapEntry  = 24
)

// pageFault is raised when the kernel touches an address that the active
// page tables do not map.
type pageFault struct {
	virt uint32
}

func (f pageFault) Error() string {
	return fmt.Sprintf("page fault accessing 0x%08x", f.virt)
}

// busError is raised for physical accesses past the end of RAM.
type busError struct {
	phys uint64
}

func (e busError) Error() string {
	return fmt.Sprintf("bus error accessing physical address 0x%x", e.phys)
}

// machine emulates the RAM and paging unit of an i386 system. Its Access
// method is installed as the mm access hook so every kernel memory access is
// translated through the page tables once paging is enabled.
type machine struct {
	ram []byte

	root    uint32
	paging  bool
	flushes []mm.VirtualAddr
}

var _ vmm.PagingUnit = (*machine)(nil)

// newMachine maps size bytes of zeroed anonymous memory to serve as RAM.
func newMachine(size uint64) (*machine, error) {
	ram, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %d bytes of RAM: %v", size, err)
	}
	return &machine{ram: ram}, nil
}

// Close releases the RAM.
func (m *machine) Close() error {
	ram := m.ram
	m.ram = nil
	return unix.Munmap(ram)
}

// LoadRoot implements vmm.PagingUnit.
func (m *machine) LoadRoot(root mm.PhysicalAddr) { m.root = uint32(root) }

// EnablePaging implements vmm.PagingUnit.
func (m *machine) EnablePaging() { m.paging = true }

// FlushTLBEntry implements vmm.PagingUnit.
func (m *machine) FlushTLBEntry(virt mm.VirtualAddr) { m.flushes = append(m.flushes, virt) }

func (m *machine) word(phys uint32) uint32 {
	if uint64(phys)+4 > uint64(len(m.ram)) {
		panic(busError{uint64(phys)})
	}
	return binary.LittleEndian.Uint32(m.ram[phys:])
}

func (m *machine) putWord(phys, v uint32) {
	binary.LittleEndian.PutUint32(m.ram[phys:], v)
}

// translate walks the page tables rooted at the loaded directory.
func (m *machine) translate(virt uint32) (uint32, bool) {
	addr := mm.VirtualAddr(virt)

	pde := m.word(m.root + addr.DirectoryIndex()*mm.WordSize)
	if vmm.Flag(pde)&vmm.FlagPresent == 0 {
		return 0, false
	}

	pte := m.word(pde&^(mm.PageSize-1) + addr.TableIndex()*mm.WordSize)
	if vmm.Flag(pte)&vmm.FlagPresent == 0 {
		return 0, false
	}

	return pte&^(mm.PageSize-1) | addr.Offset(), true
}

// Access implements mm.AccessFn.
func (m *machine) Access(addr uintptr) unsafe.Pointer {
	phys := uint32(addr)
	if m.paging {
		var ok bool
		if phys, ok = m.translate(uint32(addr)); !ok {
			panic(pageFault{uint32(addr)})
		}
	}

	if uint64(phys) >= uint64(len(m.ram)) {
		panic(busError{uint64(phys)})
	}
	return unsafe.Pointer(&m.ram[phys])
}

// writeBootInfo stores a multiboot information structure describing the
// machine RAM at bootInfoAddr and returns its address.
func (m *machine) writeBootInfo() uintptr {
	size := uint64(len(m.ram))
	regions := []struct {
		base, length uint64
		kind         multiboot.MemoryEntryType
	}{
		{0, 0x9fc00, multiboot.MemAvailable},
		{0x9fc00, 0x400, multiboot.MemReserved},
		{0xf0000, 0x10000, multiboot.MemReserved},
		{0x100000, size - 0x100000, multiboot.MemAvailable},
	}

	for i, region := range regions {
		entry := m.ram[memMapAddr+i*memMapEntry:]
		binary.LittleEndian.PutUint32(entry[0:], memMapEntry-4)
		binary.LittleEndian.PutUint64(entry[4:], region.base)
		binary.LittleEndian.PutUint64(entry[12:], region.length)
		binary.LittleEndian.PutUint32(entry[20:], uint32(region.kind))
	}

	// flags: memory info (bit 0) and memory map (bit 6)
	m.putWord(bootInfoAddr, 1|1<<6)
	m.putWord(bootInfoAddr+4, 640)
	m.putWord(bootInfoAddr+8, uint32((size-0x100000)/1024))
	m.putWord(bootInfoAddr+44, uint32(len(regions)*memMapEntry))
	m.putWord(bootInfoAddr+48, memMapAddr)

	return bootInfoAddr
}

// screen returns the rows of the VGA text buffer with trailing blanks
// removed. Trailing empty rows are dropped.
func (m *machine) screen() []string {
	const (
		fb     = 0xb8000
		width  = 80
		height = 25
	)

	rows := make([]string, 0, height)
	for y := 0; y < height; y++ {
		row := make([]byte, width)
		for x := range row {
			ch := m.ram[fb+(y*width+x)*2]
			if ch == 0 {
				ch = ' '
			}
			row[x] = ch
		}

		end := width
		for end > 0 && row[end-1] == ' ' {
			end--
		}
		rows = append(rows, string(row[:end]))
	}

	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return rows
}
