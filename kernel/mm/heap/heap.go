// Package heap implements a first-fit allocator for the kernel heap. Every
// block carries an inline header; the headers form an address-ordered doubly
// linked chain whose gaps are reused by later allocations.
package heap

import (
	"gopher386/kernel"
	"gopher386/kernel/mm"
)

var (
	// ErrOutOfMemory is returned when an empty heap cannot fit the
	// requested block.
	ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}

	// ErrAllocImpossible is returned when no gap in the heap can fit the
	// requested block or the requested layout is invalid.
	ErrAllocImpossible = &kernel.Error{Module: "heap", Message: "no gap can satisfy the requested layout"}

	// ErrCorruptFree is raised when Dealloc is called with a pointer or
	// layout that does not match a live block.
	ErrCorruptFree = &kernel.Error{Module: "heap", Message: "deallocation does not match a live block"}
)

// Allocator manages the virtual region [start, end).
type Allocator struct {
	start mm.VirtualAddr
	end   mm.VirtualAddr

	head    uint32
	hasHead bool
}

// Init sets the bounds of the heap and discards any existing blocks.
func (a *Allocator) Init(start, end mm.VirtualAddr) {
	a.start = start
	a.end = end
	a.head = 0
	a.hasHead = false
}

// Alloc returns the address of a block of size bytes aligned to align, or 0
// if the block cannot be allocated.
func (a *Allocator) Alloc(size, align uint32) uintptr {
	ptr, _ := a.TryAlloc(size, align)
	return ptr
}

// TryAlloc behaves like Alloc but reports why an allocation failed. align
// must be a power of two and size must be non-zero.
func (a *Allocator) TryAlloc(size, align uint32) (uintptr, *kernel.Error) {
	if size == 0 || align == 0 || align&(align-1) != 0 {
		return 0, ErrAllocImpossible
	}

	base := neighbor{kind: neighborBase, addr: uint32(a.start)}

	if !a.hasHead {
		hdr, ok := a.insert(uint32(a.start), base, neighbor{kind: neighborTail, addr: uint32(a.end)}, size, align)
		if !ok {
			return 0, ErrOutOfMemory
		}
		a.head, a.hasHead = hdr, true
		return uintptr(headerAt(hdr).payload), nil
	}

	// A freed first block leaves a gap at the start of the heap
	if a.head != uint32(a.start) {
		if hdr, ok := a.insert(uint32(a.start), base, neighbor{kind: neighborHeader, addr: a.head}, size, align); ok {
			a.head = hdr
			return uintptr(headerAt(hdr).payload), nil
		}
	}

	for cur := a.head; ; {
		h := headerAt(cur)
		if hdr, ok := a.insert(h.end(), neighbor{kind: neighborHeader, addr: cur}, h.next, size, align); ok {
			return uintptr(headerAt(hdr).payload), nil
		}

		if h.next.kind != neighborHeader {
			return 0, ErrAllocImpossible
		}
		cur = h.next.addr
	}
}

// insert tries to fit a new block in the gap that starts at gapStart and
// ends at next. On success the new header is linked between prev and next.
func (a *Allocator) insert(gapStart uint32, prev, next neighbor, size, align uint32) (uint32, bool) {
	var (
		gapEnd  = uint64(next.addr)
		hdr     = alignUp(uint64(gapStart), headerSize)
		payload = alignUp(hdr+headerSize+1, uint64(align))
	)

	if payload-hdr > maxHeaderOffset {
		return 0, false
	}

	if gapEnd < payload || gapEnd-payload < uint64(size) {
		return 0, false
	}

	hdrAddr := uint32(hdr)
	*headerAt(hdrAddr) = blockHeader{
		prev:    prev,
		next:    next,
		payload: uint32(payload),
		size:    size,
		align:   align,
	}
	*markerAt(uint32(payload)) = uint8(payload - hdr)

	link := neighbor{kind: neighborHeader, addr: hdrAddr}
	if next.kind == neighborHeader {
		headerAt(next.addr).prev = link
	}
	if prev.kind == neighborHeader {
		headerAt(prev.addr).next = link
	}

	return hdrAddr, true
}

// Dealloc releases a block returned by Alloc. size and align must match the
// values passed to Alloc; a mismatch means the heap is corrupted and causes
// a panic with ErrCorruptFree.
func (a *Allocator) Dealloc(ptr uintptr, size, align uint32) {
	if !a.hasHead || ptr <= uintptr(a.start)+headerSize || ptr >= uintptr(a.end) {
		panic(ErrCorruptFree)
	}

	offset := uint32(*markerAt(uint32(ptr)))
	if offset <= headerSize {
		panic(ErrCorruptFree)
	}

	hdrAddr := uint32(ptr) - offset
	h := headerAt(hdrAddr)
	if h.payload != uint32(ptr) || h.size != size || h.align != align {
		panic(ErrCorruptFree)
	}

	if h.prev.kind == neighborBase {
		a.head, a.hasHead = h.next.addr, h.next.kind == neighborHeader
	}
	if h.next.kind == neighborHeader {
		headerAt(h.next.addr).prev = h.prev
	}
	if h.prev.kind == neighborHeader {
		headerAt(h.prev.addr).next = h.next
	}

	// invalidate the header so a second free of the same block is detected
	h.payload = 0
}

// BlockVisitor is invoked by Walk for each live block. Returning false stops
// the walk.
type BlockVisitor func(payload uintptr, size, align uint32) bool

// Walk visits the live blocks in ascending address order.
func (a *Allocator) Walk(visitor BlockVisitor) {
	if !a.hasHead {
		return
	}

	for cur := a.head; ; {
		h := headerAt(cur)
		if !visitor(uintptr(h.payload), h.size, h.align) || h.next.kind != neighborHeader {
			return
		}
		cur = h.next.addr
	}
}

// Blocks returns the number of live blocks.
func (a *Allocator) Blocks() int {
	var count int
	a.Walk(func(uintptr, uint32, uint32) bool {
		count++
		return true
	})
	return count
}

// Bounds returns the heap region.
func (a *Allocator) Bounds() (start, end mm.VirtualAddr) {
	return a.start, a.end
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
