package heap

import (
	"testing"
	"unsafe"

	"gopher386/kernel"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/mmtest"
)

func newTestAllocator(t *testing.T, start, end mm.VirtualAddr) *Allocator {
	t.Helper()
	mmtest.Install(t, uintptr(end)+mm.PageSize)

	var a Allocator
	a.Init(start, end)
	return &a
}

type block struct {
	payload     uintptr
	size, align uint32
}

func liveBlocks(a *Allocator) []block {
	var blocks []block
	a.Walk(func(payload uintptr, size, align uint32) bool {
		blocks = append(blocks, block{payload, size, align})
		return true
	})
	return blocks
}

// checkChain verifies the cross links of the header chain.
func checkChain(t *testing.T, a *Allocator) {
	t.Helper()
	if !a.hasHead {
		return
	}

	if prev := headerAt(a.head).prev; prev.kind != neighborBase {
		t.Fatalf("expected first header to link to the heap base; got kind %d", prev.kind)
	}

	for cur := a.head; ; {
		h := headerAt(cur)
		if h.payload <= cur || h.end() > uint32(a.end) {
			t.Fatalf("header 0x%x has payload [0x%x, 0x%x) outside its block", cur, h.payload, h.end())
		}
		if exp := uint8(h.payload - cur); *markerAt(h.payload) != exp {
			t.Fatalf("header 0x%x: expected marker %d; got %d", cur, exp, *markerAt(h.payload))
		}

		if h.next.kind == neighborTail {
			if h.next.addr != uint32(a.end) {
				t.Fatalf("expected tail to point to heap end 0x%x; got 0x%x", uint32(a.end), h.next.addr)
			}
			return
		}

		if h.next.kind != neighborHeader {
			t.Fatalf("header 0x%x: unexpected next kind %d", cur, h.next.kind)
		}
		if h.next.addr < h.end() {
			t.Fatalf("header 0x%x: next header 0x%x overlaps payload ending at 0x%x", cur, h.next.addr, h.end())
		}

		next := headerAt(h.next.addr)
		if next.prev.kind != neighborHeader || next.prev.addr != cur {
			t.Fatalf("expected header 0x%x to link back to 0x%x; got %+v", h.next.addr, cur, next.prev)
		}
		cur = h.next.addr
	}
}

func TestHeaderSize(t *testing.T) {
	if got := unsafe.Sizeof(blockHeader{}); got != headerSize {
		t.Fatalf("expected blockHeader to be %d bytes; got %d", headerSize, got)
	}
}

func TestAllocScenario(t *testing.T) {
	a := newTestAllocator(t, 0x1000, 0x2000)

	blockA := a.Alloc(16, 4)
	if blockA != 0x1024 {
		t.Fatalf("expected first block at 0x1024; got 0x%x", blockA)
	}

	blockB := a.Alloc(32, 8)
	if blockB != 0x1068 {
		t.Fatalf("expected second block at 0x1068; got 0x%x", blockB)
	}
	checkChain(t, a)

	a.Dealloc(blockA, 16, 4)
	if a.head != 0x1040 {
		t.Fatalf("expected head to move to 0x1040; got 0x%x", a.head)
	}
	checkChain(t, a)

	// the freed lead gap is reused
	blockC := a.Alloc(8, 2)
	if blockC != 0x1022 {
		t.Fatalf("expected lead gap block at 0x1022; got 0x%x", blockC)
	}
	if a.head != 0x1000 {
		t.Fatalf("expected head to move back to 0x1000; got 0x%x", a.head)
	}
	checkChain(t, a)

	if got := a.Blocks(); got != 2 {
		t.Fatalf("expected 2 live blocks; got %d", got)
	}
}

func TestAllocAlignment(t *testing.T) {
	a := newTestAllocator(t, 0x1000, 0x9000)

	var blocks []block
	for _, align := range []uint32{1, 2, 4, 8, 16, 32, 64, 128} {
		for _, size := range []uint32{1, 3, 17, 64, 100} {
			ptr, err := a.TryAlloc(size, align)
			if err != nil {
				t.Fatalf("alloc(%d, %d): unexpected error: %v", size, align, err)
			}
			if ptr%uintptr(align) != 0 {
				t.Fatalf("alloc(%d, %d): 0x%x is not aligned", size, align, ptr)
			}
			if ptr < 0x1000 || ptr+uintptr(size) > 0x9000 {
				t.Fatalf("alloc(%d, %d): block [0x%x, 0x%x) outside heap", size, align, ptr, ptr+uintptr(size))
			}
			blocks = append(blocks, block{ptr, size, align})
		}
	}
	checkChain(t, a)

	// blocks must not overlap each other or any header
	live := liveBlocks(a)
	if len(live) != len(blocks) {
		t.Fatalf("expected %d live blocks; got %d", len(blocks), len(live))
	}
	for i := 1; i < len(live); i++ {
		if live[i-1].payload+uintptr(live[i-1].size)+headerSize > live[i].payload {
			t.Fatalf("block %+v overlaps block %+v", live[i-1], live[i])
		}
	}
}

func TestAllocFillsMiddleGap(t *testing.T) {
	a := newTestAllocator(t, 0x1000, 0x2000)

	first := a.Alloc(64, 8)
	middle := a.Alloc(128, 8)
	last := a.Alloc(64, 8)

	a.Dealloc(middle, 128, 8)
	checkChain(t, a)

	reused := a.Alloc(32, 16)
	if reused <= first || reused >= last {
		t.Fatalf("expected block in gap (0x%x, 0x%x); got 0x%x", first, last, reused)
	}
	checkChain(t, a)

	live := liveBlocks(a)
	if len(live) != 3 || live[1].payload != reused {
		t.Fatalf("expected reused block to sit between its neighbors; got %+v", live)
	}
}

func TestAllocRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 0x1000, 0x3000)

	sizes := []uint32{7, 200, 33, 1, 512, 64}
	ptrs := make([]uintptr, len(sizes))
	for i, size := range sizes {
		if ptrs[i] = a.Alloc(size, 8); ptrs[i] == 0 {
			t.Fatalf("alloc(%d, 8) failed", size)
		}
	}

	// free in an interleaved order
	for _, i := range []int{1, 3, 5, 0, 4, 2} {
		a.Dealloc(ptrs[i], sizes[i], 8)
		checkChain(t, a)
	}

	if a.hasHead || a.Blocks() != 0 {
		t.Fatalf("expected empty heap; got %d blocks", a.Blocks())
	}

	// the whole region is available again
	if ptr := a.Alloc(0x2000-headerSize-1, 1); ptr != 0x1021 {
		t.Fatalf("expected whole-heap block at 0x1021; got 0x%x", ptr)
	}
}

func TestAllocErrors(t *testing.T) {
	t.Run("empty heap too small", func(t *testing.T) {
		a := newTestAllocator(t, 0x1000, 0x1040)
		if _, err := a.TryAlloc(64, 1); err != ErrOutOfMemory {
			t.Fatalf("expected ErrOutOfMemory; got %v", err)
		}
		if ptr := a.Alloc(64, 1); ptr != 0 {
			t.Fatalf("expected Alloc to return 0; got 0x%x", ptr)
		}
	})

	t.Run("exact fit", func(t *testing.T) {
		a := newTestAllocator(t, 0x1000, 0x1040)
		if ptr := a.Alloc(0x40-headerSize-1, 1); ptr != 0x1021 {
			t.Fatalf("expected block at 0x1021; got 0x%x", ptr)
		}
	})

	t.Run("no gap fits", func(t *testing.T) {
		a := newTestAllocator(t, 0x1000, 0x1100)
		if ptr := a.Alloc(0x80, 8); ptr == 0 {
			t.Fatal("expected first allocation to succeed")
		}
		if _, err := a.TryAlloc(0x80, 8); err != ErrAllocImpossible {
			t.Fatalf("expected ErrAllocImpossible; got %v", err)
		}
	})

	t.Run("invalid layout", func(t *testing.T) {
		a := newTestAllocator(t, 0x1000, 0x2000)
		for _, spec := range []struct{ size, align uint32 }{{0, 8}, {8, 0}, {8, 3}, {8, 24}} {
			if _, err := a.TryAlloc(spec.size, spec.align); err != ErrAllocImpossible {
				t.Errorf("alloc(%d, %d): expected ErrAllocImpossible; got %v", spec.size, spec.align, err)
			}
		}
	})

	t.Run("padding exceeds marker range", func(t *testing.T) {
		a := newTestAllocator(t, 0x1000, 0x2000)
		// the payload would start 0x100 bytes after the header
		if ptr := a.Alloc(8, 256); ptr != 0 {
			t.Fatalf("expected Alloc to fail; got 0x%x", ptr)
		}
	})
}

func TestDeallocCorruption(t *testing.T) {
	expPanic := func(t *testing.T, fn func()) {
		t.Helper()
		defer func() {
			if err, ok := recover().(*kernel.Error); !ok || err != ErrCorruptFree {
				t.Fatalf("expected panic with ErrCorruptFree; got %v", err)
			}
		}()
		fn()
	}

	specs := []struct {
		name string
		fn   func(a *Allocator, ptr uintptr)
	}{
		{"size mismatch", func(a *Allocator, ptr uintptr) { a.Dealloc(ptr, 17, 4) }},
		{"align mismatch", func(a *Allocator, ptr uintptr) { a.Dealloc(ptr, 16, 8) }},
		{"interior pointer", func(a *Allocator, ptr uintptr) { a.Dealloc(ptr+4, 16, 4) }},
		{"outside heap", func(a *Allocator, ptr uintptr) { a.Dealloc(0x3000, 16, 4) }},
		{"double free", func(a *Allocator, ptr uintptr) {
			a.Alloc(8, 8)
			a.Dealloc(ptr, 16, 4)
			a.Dealloc(ptr, 16, 4)
		}},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			a := newTestAllocator(t, 0x1000, 0x2000)
			ptr := a.Alloc(16, 4)
			expPanic(t, func() { spec.fn(a, ptr) })
		})
	}

	t.Run("empty heap", func(t *testing.T) {
		a := newTestAllocator(t, 0x1000, 0x2000)
		expPanic(t, func() { a.Dealloc(0x1024, 16, 4) })
	})
}

func TestWalkStops(t *testing.T) {
	a := newTestAllocator(t, 0x1000, 0x2000)
	for i := 0; i < 4; i++ {
		a.Alloc(16, 4)
	}

	var visited int
	a.Walk(func(uintptr, uint32, uint32) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("expected walk to stop after 2 blocks; got %d", visited)
	}

	if start, end := a.Bounds(); start != 0x1000 || end != 0x2000 {
		t.Fatalf("unexpected bounds [0x%x, 0x%x)", uint32(start), uint32(end))
	}
}
