package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a frame number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = 1 << PageShift

	// EntriesPerTable is the number of 32-bit entries that fit in a page
	// directory or a page table.
	EntriesPerTable = 1024

	// DirectoryShift is the bit position of the page directory index inside
	// a virtual address.
	DirectoryShift = 22

	// RegionSize is the amount of memory covered by a single page table.
	RegionSize = Size(1 << DirectoryShift)

	// WordSize is the size in bytes of a machine word on the target.
	WordSize = 4
)
