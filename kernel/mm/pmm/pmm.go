// Package pmm implements the physical frame allocator. Frames are handed out
// by a bump cursor until physical memory is exhausted; after that, frames
// returned through Deallocate are reused in LIFO order.
package pmm

import (
	"gopher386/kernel"
	"gopher386/kernel/kfmt"
	"gopher386/kernel/mm"
)

var (
	// ErrOutOfMemory is returned when both the bump cursor and the
	// reclaimed frame stack are exhausted.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
)

// FrameAllocator tracks the physical frames of the system. The reclaimed
// frame stack lives in memory reserved at the allocator's starting address,
// sized to hold one word per frame.
type FrameAllocator struct {
	maxFrame   mm.Frame
	firstFrame mm.Frame
	nextFrame  mm.Frame

	stack frameStack
}

// Init sets up the allocator for a system with totalMemory bytes of physical
// memory. The reclaimed frame stack is placed at start and the first frame
// handed out is the first frame boundary after it.
func (alloc *FrameAllocator) Init(start mm.PhysicalAddr, totalMemory mm.Size) {
	alloc.maxFrame = mm.Frame(totalMemory >> mm.PageShift)

	stackTop := start + mm.PhysicalAddr(alloc.maxFrame)*mm.WordSize
	alloc.stack.init(start, stackTop)

	alloc.firstFrame = mm.FrameAbove(stackTop)
	alloc.nextFrame = alloc.firstFrame

	kfmt.Printf("[pmm] total memory: %dKb, frames: %d\n", uint64(totalMemory/mm.Kb), uint32(alloc.maxFrame))
	kfmt.Printf("[pmm] reclaim stack: [0x%x - 0x%x), first free frame: %d\n", uint32(start), uint32(stackTop), uint32(alloc.firstFrame))
}

// Allocate reserves a physical frame. It returns ErrOutOfMemory if no frame
// is available.
func (alloc *FrameAllocator) Allocate() (mm.Frame, *kernel.Error) {
	if alloc.nextFrame < alloc.maxFrame {
		frame := alloc.nextFrame
		alloc.nextFrame++
		return frame, nil
	}

	if frame, ok := alloc.stack.pop(); ok {
		return frame, nil
	}

	return mm.InvalidFrame, ErrOutOfMemory
}

// Deallocate returns a frame to the allocator. The frame is not validated;
// freeing a frame that is not allocated corrupts the allocator state.
func (alloc *FrameAllocator) Deallocate(frame mm.Frame) {
	alloc.stack.push(frame)
}

// FreeFrames returns the number of frames that can still be allocated.
func (alloc *FrameAllocator) FreeFrames() uint32 {
	var bump uint32
	if alloc.nextFrame < alloc.maxFrame {
		bump = uint32(alloc.maxFrame - alloc.nextFrame)
	}
	return bump + alloc.stack.len()
}

// FirstFrame returns the first frame managed by the allocator.
func (alloc *FrameAllocator) FirstFrame() mm.Frame { return alloc.firstFrame }

// MaxFrame returns the number of frames in the system.
func (alloc *FrameAllocator) MaxFrame() mm.Frame { return alloc.maxFrame }
