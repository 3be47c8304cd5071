package heap

import "gopher386/kernel/mm"

const (
	// headerSize is the size of a blockHeader. Headers are also aligned to
	// this value.
	headerSize = 32

	// maxHeaderOffset is the largest distance between a header and its
	// payload that fits in the marker byte.
	maxHeaderOffset = 255
)

type neighborKind uint32

const (
	// neighborHeader links to another block header.
	neighborHeader neighborKind = iota

	// neighborBase marks the first block; addr is the heap start.
	neighborBase

	// neighborTail marks the last block; addr is the heap end.
	neighborTail
)

// neighbor is one end of a block's link in the chain.
type neighbor struct {
	kind neighborKind
	addr uint32
}

// blockHeader is stored inline in the heap in front of every live block.
// Headers form a doubly linked chain ordered by address. The byte at
// payload-1 holds payload minus the header address.
type blockHeader struct {
	prev    neighbor
	next    neighbor
	payload uint32
	size    uint32
	align   uint32
	_       uint32
}

func headerAt(addr uint32) *blockHeader {
	return (*blockHeader)(mm.Ptr(uintptr(addr)))
}

func markerAt(payload uint32) *uint8 {
	return (*uint8)(mm.Ptr(uintptr(payload) - 1))
}

// end returns the address right after the block payload.
func (h *blockHeader) end() uint32 {
	return h.payload + h.size
}
