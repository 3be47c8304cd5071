package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"gopher386/kernel/hal/multiboot"
	"gopher386/kernel/mm"
	"gopher386/kernel/mm/vmm"
)

func newTestMachine(t *testing.T, size mm.Size) *machine {
	t.Helper()

	m, err := newMachine(uint64(size))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func expectPanic(t *testing.T, exp error, fn func()) {
	t.Helper()

	defer func() {
		if err := recover(); err != exp {
			t.Fatalf("expected panic %v; got %v", exp, err)
		}
	}()
	fn()
}

func TestMachineTranslate(t *testing.T) {
	m := newTestMachine(t, 1*mm.Mb)

	// directory at 0x1000; entry 0 points to a table at 0x2000 that maps
	// virtual page 5 to physical page 9
	m.putWord(0x1000, 0x2000|uint32(vmm.FlagPresent|vmm.FlagWritable))
	m.putWord(0x2000+5*4, 0x9000|uint32(vmm.FlagPresent))
	m.LoadRoot(0x1000)

	// identity access before paging
	*(*uint32)(m.Access(0x9010)) = 0xcafe
	if got := m.word(0x9010); got != 0xcafe {
		t.Fatalf("expected physical write; got 0x%x", got)
	}

	m.EnablePaging()
	if got := *(*uint32)(m.Access(0x5010)); got != 0xcafe {
		t.Fatalf("expected translated read of 0xcafe; got 0x%x", got)
	}

	if phys, ok := m.translate(0x5abc); !ok || phys != 0x9abc {
		t.Fatalf("expected 0x5abc to translate to 0x9abc; got 0x%x, %t", phys, ok)
	}

	expectPanic(t, pageFault{0x6000}, func() { m.Access(0x6000) })
	expectPanic(t, pageFault{0x400000}, func() { m.Access(0x400000) })
}

func TestMachineBusError(t *testing.T) {
	m := newTestMachine(t, 64*mm.Kb)
	expectPanic(t, busError{0x10000}, func() { m.Access(0x10000) })
}

func TestMachineFlushes(t *testing.T) {
	m := newTestMachine(t, 64*mm.Kb)

	var unit vmm.PagingUnit = m
	unit.FlushTLBEntry(0x1000)
	unit.FlushTLBEntry(0xc00b8000)

	if diff := cmp.Diff([]mm.VirtualAddr{0x1000, 0xc00b8000}, m.flushes); diff != "" {
		t.Fatalf("unexpected flushes (-want +got):\n%s", diff)
	}
}

func TestMachineBootInfo(t *testing.T) {
	m := newTestMachine(t, 4*mm.Mb)
	mm.SetAccessFn(m.Access)
	defer mm.SetAccessFn(nil)

	multiboot.SetInfoPtr(m.writeBootInfo())

	total, err := multiboot.TotalMemory()
	if err != nil {
		t.Fatal(err)
	}
	if total != 4*mm.Mb {
		t.Fatalf("expected 4MiB of memory; got %d", total)
	}

	type region struct {
		Base, Length uint64
		Type         multiboot.MemoryEntryType
	}
	var got []region
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		got = append(got, region{entry.PhysAddress, entry.Length, entry.Type})
		return true
	})

	exp := []region{
		{0, 0x9fc00, multiboot.MemAvailable},
		{0x9fc00, 0x400, multiboot.MemReserved},
		{0xf0000, 0x10000, multiboot.MemReserved},
		{0x100000, 3 * uint64(mm.Mb), multiboot.MemAvailable},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected memory map (-want +got):\n%s", diff)
	}
}

func TestMachineScreen(t *testing.T) {
	m := newTestMachine(t, 1*mm.Mb)

	for i, ch := range []byte("hello") {
		m.ram[0xb8000+i*2] = ch
	}
	m.ram[0xb8000+80*2*2] = '!'

	if diff := cmp.Diff([]string{"hello", "", "!"}, m.screen()); diff != "" {
		t.Fatalf("unexpected screen (-want +got):\n%s", diff)
	}
}
