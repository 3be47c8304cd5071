package kmain

import (
	"gopher386/kernel"
	"gopher386/kernel/cpu"
	"gopher386/kernel/driver/video/console"
	"gopher386/kernel/hal"
	"gopher386/kernel/hal/multiboot"
	"gopher386/kernel/kfmt"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/heap"
	"gopher386/kernel/mm/pmm"
	"gopher386/kernel/mm/vmm"
	"gopher386/kernel/sync"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The frame allocator and memory manager are package variables as
	// they are set up before the heap exists.
	frames        pmm.FrameAllocator
	memoryManager vmm.MemoryManager

	// These are mocked by tests.
	heapInitFn          = heap.Init
	initTerminalFn      = hal.InitTerminal
	installIRQControlFn = func() {
		sync.InstallIRQControl(cpu.DisableInterruptsSave, cpu.RestoreInterrupts)
	}

	// deviceWindows lists the device memory that is remapped to the upper
	// part of the address space before paging is enabled.
	deviceWindows = [...]struct {
		virt mm.VirtualAddr
		phys mm.PhysicalAddr
	}{
		{vgaWindow, console.VgaTextBuffer},
	}
)

// vgaWindow is the virtual address the VGA text buffer is remapped to.
const vgaWindow = mm.VirtualAddr(0xC00B8000)

// BootParams describes the environment handed over by the rt0 code.
type BootParams struct {
	// MultibootMagic is the value left in EAX by the bootloader.
	MultibootMagic uint32

	// MultibootInfoPtr is the physical address of the multiboot info
	// structure.
	MultibootInfoPtr uintptr

	// HeapStart and HeapEnd bound the virtual region reserved for the
	// kernel heap.
	HeapStart, HeapEnd mm.VirtualAddr

	// StackTop is the first physical address past the kernel image and
	// boot stack. The frame allocator places its bookkeeping there.
	StackTop mm.PhysicalAddr
}

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and a minimal g0 struct that allows Go code to use the boot stack.
//
// The rt0 code passes the bootloader magic value, the address of the multiboot
// info payload, the bounds of the heap region and the top of the boot stack.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootMagic, multibootInfoPtr, heapStart, heapEnd, stackTop uintptr) {
	defer kfmt.Recover()

	installIRQControlFn()

	params := BootParams{
		MultibootMagic:   uint32(multibootMagic),
		MultibootInfoPtr: multibootInfoPtr,
		HeapStart:        mm.VirtualAddr(heapStart),
		HeapEnd:          mm.VirtualAddr(heapEnd),
		StackTop:         mm.PhysicalAddr(stackTop),
	}

	if err := Init(params, vmm.CPUPagingUnit{}); err != nil {
		panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// Init brings up the memory subsystem: the frame allocator is sized from the
// memory reported by the bootloader, physical memory is identity mapped,
// device windows are remapped and paging is enabled using unit. Once the
// remapped VGA window is reachable it becomes the kfmt output sink and
// finally the kernel heap is set up.
func Init(params BootParams, unit vmm.PagingUnit) *kernel.Error {
	if err := multiboot.CheckMagic(params.MultibootMagic); err != nil {
		return err
	}
	multiboot.SetInfoPtr(params.MultibootInfoPtr)

	totalMemory, err := multiboot.TotalMemory()
	if err != nil {
		return err
	}
	printMemoryMap()

	frames.Init(params.StackTop, totalMemory)

	if err = memoryManager.Init(&frames, unit); err != nil {
		return err
	}

	if err = memoryManager.SetUpIdentityPaging(totalMemory); err != nil {
		return err
	}

	for _, window := range deviceWindows {
		if err = memoryManager.MapAddrWithoutPaging(window.virt, window.phys, vmm.FlagWritable, vmm.FlagWritable|vmm.FlagNotCacheable); err != nil {
			return err
		}
	}

	memoryManager.EnablePaging()
	initTerminalFn(uintptr(vgaWindow))

	heapInitFn(params.HeapStart, params.HeapEnd)

	kfmt.Printf("[kmain] memory subsystem ready, %d free frames\n", frames.FreeFrames())
	return nil
}

// printMemoryMap prints the memory regions reported by the bootloader.
func printMemoryMap() {
	kfmt.Printf("[kmain] system memory map:\n")
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		return true
	})
}

// Frames returns the kernel frame allocator.
func Frames() *pmm.FrameAllocator { return &frames }

// MemoryManager returns the kernel memory manager.
func MemoryManager() *vmm.MemoryManager { return &memoryManager }
