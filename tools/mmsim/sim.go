package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"gopher386/kernel"
	"gopher386/kernel/kfmt"
	"gopher386/kernel/kmain"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/heap"
	"gopher386/kernel/mm/vmm"
)

// simulation is a booted kernel memory subsystem running on a machine.
type simulation struct {
	conf *config
	m    *machine
	sink *logWriter
}

// catchPanic converts a kernel panic raised by the deferring function into
// an error.
func catchPanic(err *error) {
	r := recover()
	if r == nil {
		return
	}

	switch v := r.(type) {
	case *kernel.Error:
		*err = fmt.Errorf("kernel panic: [%s] %s", v.Module, v.Message)
	case error:
		*err = fmt.Errorf("kernel panic: %w", v)
	default:
		*err = fmt.Errorf("kernel panic: %v", v)
	}
}

// boot runs the kernel memory initialization sequence against a new machine
// described by conf. Kernel output is logged through log. Only one
// simulation can be booted per process as the kernel heap cannot be
// initialized twice.
func boot(conf *config, log *logrus.Logger) (_ *simulation, err error) {
	m, err := newMachine(conf.memorySize())
	if err != nil {
		return nil, err
	}

	sim := &simulation{
		conf: conf,
		m:    m,
		sink: newLogWriter(log.WithField("src", "kernel")),
	}
	mm.SetAccessFn(m.Access)
	kfmt.SetOutputSink(sim.sink)

	defer func() {
		if err != nil {
			sim.Close()
		}
	}()
	defer catchPanic(&err)

	params := kmain.BootParams{
		MultibootMagic:   0x2BADB002,
		MultibootInfoPtr: m.writeBootInfo(),
		HeapStart:        mm.VirtualAddr(conf.HeapStart),
		HeapEnd:          mm.VirtualAddr(conf.HeapEnd),
		StackTop:         mm.PhysicalAddr(conf.StackTop),
	}
	if kerr := kmain.Init(params, m); kerr != nil {
		return nil, fmt.Errorf("kernel init failed: [%s] %s", kerr.Module, kerr.Message)
	}

	// Init attached the VGA terminal; route further output to the log too.
	kfmt.SetOutputSink(sim.sink)

	for i, r := range conf.Remaps {
		ptFlags := vmm.Flag(0)
		if r.Writable {
			ptFlags = vmm.FlagWritable
		}
		if kerr := kmain.MemoryManager().MapAddrWithoutPaging(mm.VirtualAddr(r.Virt), mm.PhysicalAddr(r.Phys), vmm.FlagWritable, ptFlags); kerr != nil {
			return nil, fmt.Errorf("remap %d (0x%x -> 0x%x): %s", i, r.Virt, r.Phys, kerr.Message)
		}
	}

	return sim, nil
}

// Close detaches the machine from the kernel and releases its RAM.
func (s *simulation) Close() {
	kfmt.SetOutputSink(nil)
	s.sink.Flush()
	mm.SetAccessFn(nil)
	s.m.Close()
}

// frameStats summarizes the state of the frame allocator.
type frameStats struct {
	Max   uint32
	First uint32
	Free  uint32
}

func (s *simulation) frameStats() frameStats {
	frames := kmain.Frames()
	return frameStats{
		Max:   uint32(frames.MaxFrame()),
		First: uint32(frames.FirstFrame()),
		Free:  frames.FreeFrames(),
	}
}

// mappingRange is a run of pages with contiguous virtual and physical
// addresses and identical table entry flags.
type mappingRange struct {
	Virt  uint32
	Phys  uint32
	Pages uint32
	Flags vmm.Flag
}

// reportedFlags lists the table entry flags kept in a mappingRange.
var reportedFlags = [...]vmm.Flag{vmm.FlagPresent, vmm.FlagWritable, vmm.FlagUser, vmm.FlagWriteThrough, vmm.FlagNotCacheable, vmm.FlagGlobal}

// mappings returns the active mappings coalesced into ranges.
func (s *simulation) mappings() (ranges []mappingRange, err error) {
	defer catchPanic(&err)

	kmain.MemoryManager().VisitMappings(func(virt mm.VirtualAddr, pte vmm.PageTableEntry) bool {
		var (
			phys  = uint32(pte.Frame().Address())
			flags vmm.Flag
		)
		for _, f := range reportedFlags {
			if pte.HasFlags(f) {
				flags |= f
			}
		}

		if n := len(ranges); n != 0 {
			last := &ranges[n-1]
			span := last.Pages * mm.PageSize
			if last.Flags == flags && last.Virt+span == uint32(virt) && last.Phys+span == phys {
				last.Pages++
				return true
			}
		}

		ranges = append(ranges, mappingRange{Virt: uint32(virt), Phys: phys, Pages: 1, Flags: flags})
		return true
	})

	return ranges, nil
}

// translate resolves virt through the kernel page tables.
func (s *simulation) translate(virt uint32) (uint32, error) {
	phys, kerr := kmain.MemoryManager().Translate(mm.VirtualAddr(virt))
	if kerr != nil {
		return 0, kerr
	}
	return uint32(phys), nil
}

// heapBlock describes a live heap allocation.
type heapBlock struct {
	Payload uint32
	Size    uint32
	Align   uint32
}

// replayHeapTrace runs the configured heap trace through the kernel heap
// and returns the address returned by each alloc step. Failed allocations
// are reported as 0 and later frees of them are skipped.
func (s *simulation) replayHeapTrace(log *logrus.Logger) (ptrs []uintptr, err error) {
	defer catchPanic(&err)

	type live struct {
		ptr         uintptr
		size, align uint32
	}
	var allocs []live

	for i, op := range s.conf.HeapTrace {
		switch op.Op {
		case "alloc":
			ptr := heap.Alloc(op.Size, op.Align)
			allocs = append(allocs, live{ptr, op.Size, op.Align})
			ptrs = append(ptrs, ptr)

			entry := log.WithFields(logrus.Fields{"step": i, "size": op.Size, "align": op.Align})
			if ptr == 0 {
				entry.Warn("allocation failed")
				continue
			}
			entry.Debugf("allocated 0x%x", ptr)
		case "free":
			a := allocs[op.Index]
			if a.ptr == 0 {
				log.WithField("step", i).Warnf("skipping free of failed alloc %d", op.Index)
				continue
			}
			heap.Dealloc(a.ptr, a.size, a.align)
			log.WithField("step", i).Debugf("freed 0x%x", a.ptr)
		}
	}

	return ptrs, nil
}

// heapBlocks returns the live blocks of the kernel heap.
func (s *simulation) heapBlocks() []heapBlock {
	var blocks []heapBlock
	heap.Walk(func(payload uintptr, size, align uint32) bool {
		blocks = append(blocks, heapBlock{uint32(payload), size, align})
		return true
	})
	return blocks
}

// dumpScreen writes the contents of the VGA text buffer to w, prefixing
// each row.
func (s *simulation) dumpScreen(w io.Writer) {
	pw := &kfmt.PrefixWriter{Sink: w, Prefix: []byte("| ")}
	for _, row := range s.m.screen() {
		io.WriteString(pw, row+"\n")
	}
}
