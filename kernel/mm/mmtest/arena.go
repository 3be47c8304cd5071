// Package mmtest emulates physical memory for tests and hosted tools.
package mmtest

import (
	"fmt"
	"testing"
	"unsafe"

	"gopher386/kernel/mm"
)

// Arena is a word-aligned buffer that stands in for physical memory starting
// at address 0.
type Arena struct {
	words []uint64
	size  uintptr
}

// NewArena allocates an Arena covering addresses [0, size).
func NewArena(size uintptr) *Arena {
	return &Arena{
		words: make([]uint64, (size+7)/8),
		size:  size,
	}
}

// Size returns the number of addressable bytes.
func (a *Arena) Size() uintptr {
	return a.size
}

// Access implements mm.AccessFn. Accesses outside the arena panic.
func (a *Arena) Access(addr uintptr) unsafe.Pointer {
	if addr >= a.size {
		panic(fmt.Sprintf("mmtest: access to 0x%x outside arena of 0x%x bytes", addr, a.size))
	}
	return unsafe.Add(unsafe.Pointer(&a.words[0]), addr)
}

// Bytes returns the arena contents in [addr, addr+n).
func (a *Arena) Bytes(addr, n uintptr) []byte {
	return unsafe.Slice((*byte)(a.Access(addr)), n)
}

// Install allocates an Arena and registers it as the mm access hook for the
// lifetime of the test.
func Install(t testing.TB, size uintptr) *Arena {
	t.Helper()

	a := NewArena(size)
	mm.SetAccessFn(a.Access)
	t.Cleanup(func() { mm.SetAccessFn(nil) })
	return a
}
