package mm

import "math"

// Frame describes a physical memory page index.
type Frame uint32

const (
	// InvalidFrame is returned by frame allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint32)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() PhysicalAddr {
	return PhysicalAddr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr PhysicalAddr) Frame {
	return Frame(physAddr >> PageShift)
}

// FrameAbove returns the first frame that starts at or after physAddr.
func FrameAbove(physAddr PhysicalAddr) Frame {
	return Frame((uint64(physAddr) + PageSize - 1) >> PageShift)
}
