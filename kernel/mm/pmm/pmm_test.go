package pmm

import (
	"testing"

	"gopher386/kernel"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/mmtest"
)

func TestFrameAllocatorInit(t *testing.T) {
	mmtest.Install(t, 64*mm.PageSize)

	specs := []struct {
		start         mm.PhysicalAddr
		total         mm.Size
		expMax        mm.Frame
		expFirstFrame mm.Frame
	}{
		// 16 frames need 64 bytes of stack
		{0x1000, 64 * mm.Kb, 16, 2},
		{0x1fc0, 64 * mm.Kb, 16, 2},
		{0x1fc1, 64 * mm.Kb, 16, 3},
		{0x0, 1 * mm.Mb, 256, 1},
	}

	for specIndex, spec := range specs {
		var alloc FrameAllocator
		alloc.Init(spec.start, spec.total)

		if got := alloc.MaxFrame(); got != spec.expMax {
			t.Errorf("[spec %d] expected max frame %d; got %d", specIndex, spec.expMax, got)
		}
		if got := alloc.FirstFrame(); got != spec.expFirstFrame {
			t.Errorf("[spec %d] expected first frame %d; got %d", specIndex, spec.expFirstFrame, got)
		}
		if exp, got := uint32(spec.expMax-spec.expFirstFrame), alloc.FreeFrames(); got != exp {
			t.Errorf("[spec %d] expected %d free frames; got %d", specIndex, exp, got)
		}
	}
}

func TestFrameAllocatorBump(t *testing.T) {
	mmtest.Install(t, 64*mm.PageSize)

	var alloc FrameAllocator
	alloc.Init(0x1000, 64*mm.Kb)

	var last mm.Frame
	for i := 0; i < 14; i++ {
		frame, err := alloc.Allocate()
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}

		if i > 0 && frame <= last {
			t.Fatalf("[alloc %d] expected frames to increase; got %d after %d", i, frame, last)
		}
		if frame < alloc.FirstFrame() || frame >= alloc.MaxFrame() {
			t.Fatalf("[alloc %d] frame %d outside [%d, %d)", i, frame, alloc.FirstFrame(), alloc.MaxFrame())
		}
		last = frame
	}

	if _, err := alloc.Allocate(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
}

func TestFrameAllocatorReclaim(t *testing.T) {
	mmtest.Install(t, 64*mm.PageSize)

	var alloc FrameAllocator
	alloc.Init(0x1000, 64*mm.Kb)

	for alloc.FreeFrames() != 0 {
		if _, err := alloc.Allocate(); err != nil {
			t.Fatal(err)
		}
	}

	alloc.Deallocate(5)
	alloc.Deallocate(9)

	if got := alloc.FreeFrames(); got != 2 {
		t.Fatalf("expected 2 free frames; got %d", got)
	}

	for _, exp := range []mm.Frame{9, 5} {
		got, err := alloc.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if got != exp {
			t.Fatalf("expected reclaimed frame %d; got %d", exp, got)
		}
	}

	if _, err := alloc.Allocate(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
}

func TestFrameAllocatorReclaimBeforeExhaustion(t *testing.T) {
	mmtest.Install(t, 64*mm.PageSize)

	var alloc FrameAllocator
	alloc.Init(0x1000, 64*mm.Kb)

	frame, _ := alloc.Allocate()
	alloc.Deallocate(frame)

	// The bump cursor takes precedence over the reclaimed stack
	next, _ := alloc.Allocate()
	if next != frame+1 {
		t.Fatalf("expected bump frame %d; got %d", frame+1, next)
	}
}

func TestFrameStackOverflow(t *testing.T) {
	mmtest.Install(t, 64*mm.PageSize)

	var alloc FrameAllocator
	alloc.Init(0x1000, 8*mm.Kb)

	defer func() {
		if err, ok := recover().(*kernel.Error); !ok || err != errFrameStackFull {
			t.Fatalf("expected panic with errFrameStackFull; got %v", err)
		}
	}()

	for i := 0; i < 3; i++ {
		alloc.Deallocate(mm.Frame(i))
	}
}
