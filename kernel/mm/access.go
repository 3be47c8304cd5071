// Package mm contains the address types and helpers shared by the physical
// and virtual memory managers and the heap.
package mm

import "unsafe"

// AccessFn converts a kernel address into a pointer that the running code
// can dereference.
type AccessFn func(addr uintptr) unsafe.Pointer

var accessFn AccessFn = identityAccess

func identityAccess(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

// SetAccessFn overrides the function used by Ptr. Passing nil restores the
// identity mapping used by the kernel. Hosted tools and tests use this hook to
// back physical memory with a buffer.
func SetAccessFn(fn AccessFn) {
	if fn == nil {
		fn = identityAccess
	}
	accessFn = fn
}

// Ptr returns a pointer to the memory at addr.
func Ptr(addr uintptr) unsafe.Pointer {
	return accessFn(addr)
}

// Word returns a pointer to the 32-bit word at addr.
func Word(addr uintptr) *uint32 {
	return (*uint32)(accessFn(addr))
}
