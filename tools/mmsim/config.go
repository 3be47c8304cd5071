package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"gopher386/kernel/mm"
)

const (
	defaultMemoryKb  = 16 * 1024
	defaultStackTop  = 0x00200000
	defaultHeapStart = 0x00400000
	defaultHeapEnd   = 0x00800000

	// minMemoryKb covers the low 1MiB plus the kernel image.
	minMemoryKb = 2 * 1024

	// maxMemoryKb keeps the identity mapping below the 3GiB device window.
	maxMemoryKb = 3 * 1024 * 1024
)

// remap describes an extra mapping installed after paging is enabled.
type remap struct {
	Virt     uint32 `toml:"virt"`
	Phys     uint32 `toml:"phys"`
	Writable bool   `toml:"writable"`
}

// heapOp is a single step of a heap trace. Alloc steps request Size bytes
// aligned to Align. Free steps release the block returned by the Index-th
// alloc step.
type heapOp struct {
	Op    string `toml:"op"`
	Size  uint32 `toml:"size"`
	Align uint32 `toml:"align"`
	Index int    `toml:"index"`
}

// config describes the simulated machine.
type config struct {
	// MemoryKb is the total amount of RAM, including the low 1MiB.
	MemoryKb uint32 `toml:"memory_kb"`

	// StackTop is the physical address past the kernel image and boot
	// stack. The frame allocator keeps its reclaim stack there.
	StackTop uint32 `toml:"stack_top"`

	// HeapStart and HeapEnd bound the kernel heap.
	HeapStart uint32 `toml:"heap_start"`
	HeapEnd   uint32 `toml:"heap_end"`

	Remaps    []remap  `toml:"remap"`
	HeapTrace []heapOp `toml:"heap_trace"`
}

// loadConfig loads the machine description from path. Keys that are not
// present in the file keep their default values.
func loadConfig(path string) (*config, error) {
	c := defaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid machine config %q: %w", path, err)
	}
	return c, nil
}

// parseConfig is like loadConfig but decodes the description from data.
func parseConfig(data string) (*config, error) {
	c := defaultConfig()
	if _, err := toml.Decode(data, c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultConfig() *config {
	return &config{
		MemoryKb:  defaultMemoryKb,
		StackTop:  defaultStackTop,
		HeapStart: defaultHeapStart,
		HeapEnd:   defaultHeapEnd,
	}
}

// memorySize returns the RAM size in bytes.
func (c *config) memorySize() uint64 {
	return uint64(c.MemoryKb) * 1024
}

// reservedEnd returns the first address past the frame reclaim stack and the
// frames needed for the page directory and page tables.
func (c *config) reservedEnd() uint64 {
	var (
		frames   = c.memorySize() >> mm.PageShift
		stackEnd = uint64(c.StackTop) + frames*mm.WordSize
		regions  = (c.memorySize() + uint64(mm.RegionSize) - 1) / uint64(mm.RegionSize)

		// directory, identity tables, the VGA window table and one table
		// per remap in the worst case
		tables = 1 + regions + 1 + uint64(len(c.Remaps))
	)

	stackEnd = (stackEnd + mm.PageSize - 1) &^ (mm.PageSize - 1)
	return stackEnd + tables*mm.PageSize
}

func (c *config) validate() error {
	switch {
	case c.MemoryKb < minMemoryKb:
		return fmt.Errorf("memory_kb must be at least %d; got %d", minMemoryKb, c.MemoryKb)
	case c.MemoryKb > maxMemoryKb:
		return fmt.Errorf("memory_kb must be at most %d; got %d", maxMemoryKb, c.MemoryKb)
	case c.MemoryKb%4 != 0:
		return fmt.Errorf("memory_kb must be a multiple of the page size; got %d", c.MemoryKb)
	case c.StackTop < 0x100000:
		return fmt.Errorf("stack_top must be above the low 1MiB; got 0x%x", c.StackTop)
	case c.HeapStart >= c.HeapEnd:
		return fmt.Errorf("heap_start (0x%x) must be below heap_end (0x%x)", c.HeapStart, c.HeapEnd)
	case uint64(c.HeapEnd) > c.memorySize():
		return fmt.Errorf("heap_end (0x%x) is past the end of memory (0x%x)", c.HeapEnd, c.memorySize())
	case uint64(c.HeapStart) < c.reservedEnd():
		return fmt.Errorf("heap_start (0x%x) overlaps the frame allocator and page tables ending at 0x%x", c.HeapStart, c.reservedEnd())
	}

	for i, r := range c.Remaps {
		if uint64(r.Phys) >= c.memorySize() {
			return fmt.Errorf("remap %d: physical address 0x%x is past the end of memory", i, r.Phys)
		}
	}

	allocs := 0
	for i, op := range c.HeapTrace {
		switch op.Op {
		case "alloc":
			allocs++
		case "free":
			if op.Index < 0 || op.Index >= allocs {
				return fmt.Errorf("heap_trace %d: free refers to alloc %d but only %d allocs precede it", i, op.Index, allocs)
			}
		default:
			return fmt.Errorf("heap_trace %d: unknown op %q", i, op.Op)
		}
	}

	return nil
}
