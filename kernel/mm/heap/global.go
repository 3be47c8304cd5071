package heap

import (
	"gopher386/kernel/kfmt"
	"gopher386/kernel/mm"
	"gopher386/kernel/sync"
)

// kernelHeap is the process-wide allocator. It is populated by Init and
// always locked with interrupts masked.
var kernelHeap sync.Static[sync.SpinMutex[Allocator]]

// Init sets up the kernel heap over [start, end). It panics if called twice.
func Init(start, end mm.VirtualAddr) {
	var a Allocator
	a.Init(start, end)
	kernelHeap.Init(sync.NewSpinMutex(a))

	kfmt.Printf("[heap] region: [0x%x - 0x%x), size: %dKb\n", uint32(start), uint32(end), uint32(end-start)/1024)
}

// Alloc allocates a block from the kernel heap. It returns 0 if the request
// cannot be satisfied.
func Alloc(size, align uint32) uintptr {
	irq := sync.IRQSave()
	g := kernelHeap.Get().Lock()
	ptr := g.Value().Alloc(size, align)
	g.Unlock()
	sync.IRQRestore(irq)

	return ptr
}

// Dealloc returns a block obtained from Alloc to the kernel heap.
func Dealloc(ptr uintptr, size, align uint32) {
	irq := sync.IRQSave()
	g := kernelHeap.Get().Lock()
	g.Value().Dealloc(ptr, size, align)
	g.Unlock()
	sync.IRQRestore(irq)
}

// Walk visits the live blocks of the kernel heap. The visitor runs with the
// heap locked and must not allocate from it.
func Walk(visitor BlockVisitor) {
	irq := sync.IRQSave()
	g := kernelHeap.Get().Lock()
	g.Value().Walk(visitor)
	g.Unlock()
	sync.IRQRestore(irq)
}
