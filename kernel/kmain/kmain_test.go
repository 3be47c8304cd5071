package kmain

import (
	"encoding/binary"
	"testing"

	"gopher386/kernel/hal/multiboot"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/mmtest"
	"gopher386/kernel/mm/vmm"
)

const (
	testInfoAddr = 0x500
	testStackTop = 0x1000
)

type recordingUnit struct {
	root    mm.PhysicalAddr
	enabled bool
}

func (u *recordingUnit) LoadRoot(root mm.PhysicalAddr) { u.root = root }
func (u *recordingUnit) EnablePaging() { u.enabled = true }
func (u *recordingUnit) FlushTLBEntry(mm.VirtualAddr) {}

var terminalAddrs []uintptr

type heapInitCall struct {
	start, end mm.VirtualAddr
}

// setupBoot emulates physical memory and writes a multiboot info structure
// reporting upperKb of upper memory.
func setupBoot(t *testing.T, flags, upperKb uint32) *[]heapInitCall {
	t.Helper()

	arena := mmtest.Install(t, 64*mm.PageSize)
	info := arena.Bytes(testInfoAddr, 12)
	binary.LittleEndian.PutUint32(info[0:], flags)
	binary.LittleEndian.PutUint32(info[4:], 639)
	binary.LittleEndian.PutUint32(info[8:], upperKb)

	var calls []heapInitCall
	origHeapInit := heapInitFn
	t.Cleanup(func() { heapInitFn = origHeapInit })
	heapInitFn = func(start, end mm.VirtualAddr) {
		calls = append(calls, heapInitCall{start, end})
	}

	origInitTerminal := initTerminalFn
	t.Cleanup(func() { initTerminalFn = origInitTerminal })
	initTerminalFn = func(fbAddr uintptr) {
		terminalAddrs = append(terminalAddrs, fbAddr)
	}
	terminalAddrs = nil

	return &calls
}

func testParams() BootParams {
	return BootParams{
		MultibootMagic:   multiboot.BootloaderMagic,
		MultibootInfoPtr: testInfoAddr,
		HeapStart:        0x00400000,
		HeapEnd:          0x00800000,
		StackTop:         testStackTop,
	}
}

func TestInit(t *testing.T) {
	heapCalls := setupBoot(t, 1, 7*1024)

	var unit recordingUnit
	if err := Init(testParams(), &unit); err != nil {
		t.Fatal(err)
	}

	// 8MiB of memory: 2048 frames whose reclaim stack takes 8KiB
	if got := Frames().MaxFrame(); got != 2048 {
		t.Fatalf("expected 2048 frames; got %d", got)
	}
	if got := Frames().FirstFrame(); got != 3 {
		t.Fatalf("expected first frame 3; got %d", got)
	}

	m := MemoryManager()
	if !unit.enabled || unit.root != m.Directory().PhysicalAddr() {
		t.Fatalf("expected paging to be enabled with root 0x%x; got root 0x%x, enabled %t", uint32(m.Directory().PhysicalAddr()), uint32(unit.root), unit.enabled)
	}
	if !m.PagingEnabled() {
		t.Fatal("expected memory manager to report paging as enabled")
	}

	for _, addr := range []mm.VirtualAddr{0, 0x1000, 0x7fffff} {
		if got, err := m.Translate(addr); err != nil || got != mm.PhysicalAddr(addr) {
			t.Errorf("expected identity mapping for 0x%x; got 0x%x, %v", uint32(addr), uint32(got), err)
		}
	}

	if got, err := m.Translate(0xC00B8000); err != nil || got != 0xB8000 {
		t.Fatalf("expected VGA window to map to 0xb8000; got 0x%x, %v", uint32(got), err)
	}

	// directory, 2 identity tables and the VGA window table
	if exp, got := uint32(2048-3-4), Frames().FreeFrames(); got != exp {
		t.Fatalf("expected %d free frames; got %d", exp, got)
	}

	if len(terminalAddrs) != 1 || terminalAddrs[0] != 0xC00B8000 {
		t.Fatalf("expected terminal to be attached to the VGA window; got %x", terminalAddrs)
	}

	if len(*heapCalls) != 1 || (*heapCalls)[0] != (heapInitCall{0x00400000, 0x00800000}) {
		t.Fatalf("expected heap to be initialized over [0x400000, 0x800000); got %v", *heapCalls)
	}
}

func TestInitErrors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		heapCalls := setupBoot(t, 1, 7*1024)

		params := testParams()
		params.MultibootMagic = 0xbadf00d
		if err := Init(params, &recordingUnit{}); err != multiboot.ErrBadMagic {
			t.Fatalf("expected multiboot.ErrBadMagic; got %v", err)
		}
		if len(*heapCalls) != 0 {
			t.Fatal("expected heap not to be initialized")
		}
	})

	t.Run("missing memory info", func(t *testing.T) {
		setupBoot(t, 0, 7*1024)

		var unit recordingUnit
		if err := Init(testParams(), &unit); err != multiboot.ErrNoMemoryInfo {
			t.Fatalf("expected multiboot.ErrNoMemoryInfo; got %v", err)
		}
		if unit.enabled {
			t.Fatal("expected paging to remain disabled")
		}
	})

	t.Run("out of frames", func(t *testing.T) {
		setupBoot(t, 1, 0)

		// 1MiB of memory with the frame stack placed near its end leaves
		// no frames for the page tables
		params := testParams()
		params.StackTop = 0xffc00
		if err := Init(params, &recordingUnit{}); err == nil {
			t.Fatal("expected Init to fail")
		}
	})
}

var _ vmm.PagingUnit = (*recordingUnit)(nil)
