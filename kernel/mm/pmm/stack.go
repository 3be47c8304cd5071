package pmm

import (
	"gopher386/kernel"
	"gopher386/kernel/mm"
)

var errFrameStackFull = &kernel.Error{Module: "pmm", Message: "reclaimed frame stack overflow"}

// frameStack is a LIFO of frame numbers stored in physical memory. It grows
// downwards from top towards bottom; ptr points at the most recently pushed
// entry.
type frameStack struct {
	bottom mm.PhysicalAddr
	top    mm.PhysicalAddr
	ptr    mm.PhysicalAddr
}

func (s *frameStack) init(bottom, top mm.PhysicalAddr) {
	s.bottom = bottom
	s.top = top
	s.ptr = top
}

func (s *frameStack) len() uint32 {
	return uint32(s.top-s.ptr) / mm.WordSize
}

// push stores a frame number. The stack has room for every frame in the
// system so an overflow can only be caused by freeing a frame twice.
func (s *frameStack) push(frame mm.Frame) {
	if s.ptr == s.bottom {
		panic(errFrameStackFull)
	}

	s.ptr -= mm.WordSize
	*mm.Word(uintptr(s.ptr)) = uint32(frame)
}

func (s *frameStack) pop() (mm.Frame, bool) {
	if s.ptr == s.top {
		return mm.InvalidFrame, false
	}

	frame := mm.Frame(*mm.Word(uintptr(s.ptr)))
	s.ptr += mm.WordSize
	return frame, true
}
