package mm

// Size represents a memory block size in bytes. It is wider than the 32-bit
// address space so that the full 4GiB can be expressed.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)
